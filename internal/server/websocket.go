package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"nhooyr.io/websocket"

	"tictactoe/internal/auth"
	"tictactoe/internal/game"
	"tictactoe/internal/protocol"
	"tictactoe/internal/room"
)

// Client-facing error messages.
const (
	msgNotLoggedIn       = "Not logged in yet!"
	msgRoomMissing       = "room does not exist"
	msgAlreadyStarted    = "Game has already started!"
	msgMissingPermission = "Only the host can start the game!"
	msgNotEnoughPlayer   = "Not enough players to start!"
	msgNotStarted        = "Game hasn't started yet!"
	msgAlreadyEnded      = "Game has already ended!"
	msgInvalidMove       = "Invalid move!"
	msgInvalidTurn       = "Not your turn yet!"
	msgSpectating        = "You are spectating this game"
	msgInvalidMessage    = "Invalid message data"
	msgEmptyChat         = "Chat message is empty"
	msgUnknownVariant    = "Unknown game variant"
	msgInternal          = "Internal server error"
)

// describe maps a domain error onto the message sent to the client.
func describe(err error) string {
	var turn *game.TurnError
	switch {
	case errors.As(err, &turn):
		if turn.Spectator {
			return msgSpectating
		}
		return msgInvalidTurn
	case errors.Is(err, game.ErrAlreadyStarted):
		return msgAlreadyStarted
	case errors.Is(err, room.ErrMissingPermission):
		return msgMissingPermission
	case errors.Is(err, room.ErrNotEnoughPlayer):
		return msgNotEnoughPlayer
	case errors.Is(err, game.ErrNotStarted):
		return msgNotStarted
	case errors.Is(err, game.ErrAlreadyEnded):
		return msgAlreadyEnded
	case errors.Is(err, game.ErrInvalidMove):
		return msgInvalidMove
	case errors.Is(err, protocol.ErrInvalidMessage):
		return msgInvalidMessage
	case errors.Is(err, room.ErrEmptyChat):
		return msgEmptyChat
	case errors.Is(err, room.ErrRoomClosed), errors.Is(err, room.ErrNotInRoom):
		return msgRoomMissing
	case errors.Is(err, room.ErrUnknownVariant):
		return msgUnknownVariant
	}
	return msgInternal
}

// resolve identifies the caller before the upgrade. Invalid credentials get
// a plain 401.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, err := s.resolver.Resolve(r)
	if err != nil {
		s.logger.Debug("rejected credentials", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return nil, false
	}
	return identity, true
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.logger.Debug("websocket accept", "error", err)
		return nil, false
	}
	return conn, true
}

// reject sends a single error envelope and closes normally.
func (s *Server) reject(ctx context.Context, conn *websocket.Conn, message string) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	conn.Write(ctx, websocket.MessageText, protocol.Error(message))
	conn.Close(websocket.StatusNormalClosure, "")
}

// startWriter drains p's outbox onto conn and closes conn normally once the
// outbox is closed. The returned channel is closed when the writer exits.
func (s *Server) startWriter(conn *websocket.Conn, p *room.Player, log *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range p.Outbox() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
			err := conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				log.Debug("write failed", "error", err)
				p.Close()
				conn.CloseNow()
				return
			}
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}()
	return done
}

// readText reads the next frame and enforces text-only framing.
func readText(ctx context.Context, conn *websocket.Conn) (string, error) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return "", err
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusProtocolError, "text frames only")
		return "", errors.New("binary frame")
	}
	return string(data), nil
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.resolve(w, r)
	if !ok {
		return
	}
	conn, ok := s.accept(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if identity == nil {
		s.reject(ctx, conn, msgNotLoggedIn)
		return
	}

	variant := r.URL.Query().Get("variant")
	if variant == "" {
		variant = s.opts.DefaultVariant
	}

	player := room.NewPlayer(identity, s.opts.OutboxSize)
	log := s.logger.With("player", player.ID, "name", player.Label())
	done := s.startWriter(conn, player, log)

	rm, err := s.directory.CreateRoom(player, variant)
	if err != nil {
		log.Warn("create room", "variant", variant, "error", err)
		player.Send(protocol.Error(describe(err)))
		player.Close()
		<-done
		return
	}
	s.serveRoom(ctx, conn, rm, player, done, log.With("room", rm.ID()))
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.resolve(w, r)
	if !ok {
		return
	}
	conn, ok := s.accept(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	rm, found := s.directory.Room(r.PathValue("room_id"))
	if !found {
		s.reject(ctx, conn, msgRoomMissing)
		return
	}

	player := room.NewPlayer(identity, s.opts.OutboxSize)
	log := s.logger.With("player", player.ID, "name", player.Label(), "room", rm.ID())
	done := s.startWriter(conn, player, log)

	role, err := rm.Join(player)
	if err != nil {
		player.Send(protocol.Error(describe(err)))
		player.Close()
		<-done
		return
	}
	log.Info("joined room", "role", role.String())
	s.serveRoom(ctx, conn, rm, player, done, log)
}

// serveRoom runs the reader loop for a seated player. When the loop ends
// the player leaves the room and the writer is drained.
func (s *Server) serveRoom(ctx context.Context, conn *websocket.Conn, rm *room.Room, player *room.Player, done <-chan struct{}, log *slog.Logger) {
	defer func() {
		rm.Leave(player)
		player.Close()
		<-done
		log.Info("disconnected")
	}()

	for {
		text, err := readText(ctx, conn)
		if err != nil {
			return
		}
		s.handleRoomMessage(rm, player, text, log)
	}
}

func (s *Server) handleRoomMessage(rm *room.Room, player *room.Player, text string, log *slog.Logger) {
	defer func() {
		if v := recover(); v != nil {
			log.Error("panic handling message", "panic", v)
			player.Send(protocol.Error(msgInternal))
		}
	}()

	cmd, err := protocol.Parse(text)
	if err != nil {
		player.Send(protocol.Error(describe(err)))
		return
	}

	switch cmd.Kind {
	case protocol.KindPing:
		player.Send([]byte(protocol.Pong))
	case protocol.KindRequest:
		rm.Notify(player)
	case protocol.KindChat:
		err = rm.Chat(player, cmd.Text)
	case protocol.KindStart:
		err = rm.Start(player)
	case protocol.KindMove:
		err = rm.Move(player, cmd.Row, cmd.Column)
	}
	if err != nil {
		log.Debug("command rejected", "command", cmd.Kind.String(), "error", err)
		player.Send(protocol.Error(describe(err)))
	}
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.resolve(w, r)
	if !ok {
		return
	}
	conn, ok := s.accept(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	listener := room.NewPlayer(identity, s.opts.OutboxSize)
	log := s.logger.With("listener", listener.ID)
	done := s.startWriter(conn, listener, log)
	s.directory.AddListener(listener)
	defer func() {
		s.directory.RemoveListener(listener)
		listener.Close()
		<-done
	}()

	for {
		text, err := readText(ctx, conn)
		if err != nil {
			return
		}
		switch text {
		case "REQUEST", "PING":
			s.directory.Notify(listener)
		default:
			listener.Send(protocol.Error(msgInvalidMessage))
		}
	}
}
