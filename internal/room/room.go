// Package room holds live game rooms, the players connected to them and the
// directory that indexes open rooms.
package room

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"tictactoe/internal/game"
	"tictactoe/internal/protocol"
)

var (
	ErrMissingPermission = errors.New("only the host can start the game")
	ErrNotEnoughPlayer   = errors.New("not enough players to start")
	ErrRoomClosed        = errors.New("room does not exist")
	ErrNotInRoom         = errors.New("player is not in this room")
	ErrEmptyChat         = errors.New("empty chat message")
)

// Role is a player's seat in a room.
type Role int

const (
	RoleNone Role = iota
	RoleHost
	RoleOpponent
	RoleSpectator
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleOpponent:
		return "opponent"
	case RoleSpectator:
		return "spectator"
	}
	return "none"
}

// Room is one table: a host, an optional opponent, any number of spectators
// and, once started, a match. All operations are serialized by mu, and every
// accepted mutation is broadcast to the room before mu is released.
type Room struct {
	id      string
	variant game.Variant
	logger  *slog.Logger

	mu         sync.Mutex
	host       *Player
	other      *Player
	spectators map[*Player]struct{}
	logs       []string
	state      *game.State
	result     *Result
	closed     bool

	// Hooks run after mu is released. onClose runs at most once.
	onChange func(*Room)
	onClose  func(*Room)
}

// New creates an open room owned by host.
func New(id string, variant game.Variant, host *Player) *Room {
	return &Room{
		id:         id,
		variant:    variant,
		logger:     slog.Default().With("room", id),
		host:       host,
		spectators: make(map[*Player]struct{}),
	}
}

func (r *Room) ID() string            { return r.id }
func (r *Room) Variant() game.Variant { return r.variant }

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Join seats p as the opponent when that seat is free, otherwise as a
// spectator. Joining again returns the existing role.
func (r *Room) Join(p *Player) (Role, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return RoleNone, ErrRoomClosed
	}
	if role := r.roleLocked(p); role != RoleNone {
		r.mu.Unlock()
		return role, nil
	}

	var role Role
	if r.other == nil {
		r.other = p
		role = RoleOpponent
		r.logf("%s joined the game", p.Label())
	} else {
		r.spectators[p] = struct{}{}
		role = RoleSpectator
		r.logf("%s is spectating", p.Label())
	}
	r.broadcastLocked()
	r.mu.Unlock()

	r.changed()
	return role, nil
}

// Leave removes p. A participant leaving a running match forfeits it and
// closes the room. In the lobby the opponent is promoted when the host
// leaves, and the room closes once nobody is seated. Unknown players and
// closed rooms are ignored.
func (r *Room) Leave(p *Player) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	closing := false
	switch r.roleLocked(p) {
	case RoleHost, RoleOpponent:
		r.logf("%s left the game", p.Label())
		switch {
		case r.activeLocked():
			winner := r.host
			if p == r.host {
				winner = r.other
			}
			r.state.End(r.markLocked(winner))
			r.finishLocked(fmt.Sprintf("%s won: %s left the game", winner.Label(), p.Label()))
			closing = true
		case p == r.other:
			r.other = nil
		case r.other != nil:
			r.host, r.other = r.other, nil
			r.logf("%s is now the host", r.host.Label())
		default:
			closing = true
		}
	case RoleSpectator:
		delete(r.spectators, p)
	default:
		r.mu.Unlock()
		return
	}

	if !closing {
		r.broadcastLocked()
		r.mu.Unlock()
		r.changed()
		return
	}
	listeners := r.closeLocked()
	r.mu.Unlock()
	r.teardown(listeners)
}

// Chat appends a chat line from p to the room log.
func (r *Room) Chat(p *Player, text string) error {
	text = strings.TrimSpace(text)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if text == "" {
		return ErrEmptyChat
	}
	role := r.roleLocked(p)
	if role == RoleNone {
		return ErrNotInRoom
	}

	label := p.Label()
	switch {
	case role == RoleSpectator:
		label += " (spectator)"
	case p.Anonymous():
		label += " (guest)"
	}
	r.logf("[%s]: %s", label, text)
	r.broadcastLocked()
	return nil
}

// Start begins the match. Only the host may start, and only with an
// opponent seated.
func (r *Room) Start(p *Player) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if r.state != nil {
		r.mu.Unlock()
		return game.ErrAlreadyStarted
	}
	if p != r.host {
		r.mu.Unlock()
		return ErrMissingPermission
	}
	if r.other == nil {
		r.mu.Unlock()
		return ErrNotEnoughPlayer
	}

	state := game.NewState(r.variant)
	if err := state.Start(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = state
	r.logf("Game started!")
	r.broadcastLocked()
	r.mu.Unlock()

	r.changed()
	return nil
}

// Move places p's mark. When the move finishes the match the final state is
// broadcast and the room closes.
func (r *Room) Move(p *Player, row, column int) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomClosed
	}
	if r.state == nil {
		r.mu.Unlock()
		return game.ErrNotStarted
	}
	if err := r.state.Move(row, column, r.markLocked(p)); err != nil {
		r.mu.Unlock()
		return err
	}

	if !r.state.Ended() {
		r.broadcastLocked()
		r.mu.Unlock()
		return nil
	}

	if r.state.Draw() {
		r.finishLocked("Draw: the board is full")
	} else {
		r.finishLocked(fmt.Sprintf("%s won: got %d marks in a row", p.Label(), r.variant.WinLength))
	}
	listeners := r.closeLocked()
	r.mu.Unlock()
	r.teardown(listeners)
	return nil
}

// Notify sends the current room state to p alone.
func (r *Room) Notify(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.encodeLocked(); ok {
		p.Send(data)
	}
}

// Sync broadcasts the current state to everyone in the room.
func (r *Room) Sync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked()
}

// Close shuts the room without recording a result. Safe to call repeatedly.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	listeners := r.closeLocked()
	r.mu.Unlock()
	r.teardown(listeners)
}

// Snapshot is the full wire form of a room.
type Snapshot struct {
	ID         string      `json:"id"`
	Variant    string      `json:"variant"`
	Logs       []string    `json:"logs"`
	Host       *PlayerView `json:"host"`
	Other      *PlayerView `json:"other"`
	Spectators int         `json:"spectators"`
	game.Snapshot
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Summary is the room-list form of a room.
type Summary struct {
	ID         string      `json:"id"`
	Variant    string      `json:"variant"`
	Host       *PlayerView `json:"host"`
	Other      *PlayerView `json:"other"`
	Spectators int         `json:"spectators"`
	Started    bool        `json:"started"`
	Ended      bool        `json:"ended"`
}

func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		ID:         r.id,
		Variant:    r.variant.Name,
		Host:       r.host.View(),
		Other:      r.other.View(),
		Spectators: len(r.spectators),
	}
	if r.state != nil {
		s.Started = r.state.Started()
		s.Ended = r.state.Ended()
	}
	return s
}

// Result describes a finished match.
type Result struct {
	RoomID  string
	Variant string
	Host    *PlayerView
	Other   *PlayerView
	Winner  game.Mark
	Moves   int
	Reason  string
	EndedAt time.Time
}

// Result reports the outcome once a match has finished.
func (r *Room) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return Result{}, false
	}
	return *r.result, true
}

func (r *Room) roleLocked(p *Player) Role {
	switch {
	case p == nil:
		return RoleNone
	case p == r.host:
		return RoleHost
	case p == r.other:
		return RoleOpponent
	}
	if _, ok := r.spectators[p]; ok {
		return RoleSpectator
	}
	return RoleNone
}

func (r *Room) markLocked(p *Player) game.Mark {
	switch r.roleLocked(p) {
	case RoleHost:
		return game.Host
	case RoleOpponent:
		return game.Opponent
	}
	return game.NoMark
}

func (r *Room) activeLocked() bool {
	return r.state != nil && r.state.Started() && !r.state.Ended()
}

func (r *Room) logf(format string, args ...any) {
	r.logs = append(r.logs, fmt.Sprintf(format, args...))
}

// finishLocked records the result of an ended match and broadcasts it.
func (r *Room) finishLocked(reason string) {
	r.logf("%s", reason)
	winner, _ := r.state.Winner()
	r.result = &Result{
		RoomID:  r.id,
		Variant: r.variant.Name,
		Host:    r.host.View(),
		Other:   r.other.View(),
		Winner:  winner,
		Moves:   r.state.Moves(),
		Reason:  reason,
		EndedAt: time.Now().UTC(),
	}
	r.logger.Info("game finished", "reason", reason, "moves", r.state.Moves())
	r.broadcastLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:         r.id,
		Variant:    r.variant.Name,
		Logs:       append([]string{}, r.logs...),
		Host:       r.host.View(),
		Other:      r.other.View(),
		Spectators: len(r.spectators),
	}
	if r.state != nil {
		s.Snapshot = r.state.Snapshot()
	} else {
		s.Snapshot = game.LobbySnapshot(r.variant)
	}
	return s
}

func (r *Room) encodeLocked() ([]byte, bool) {
	data, err := protocol.Data(r.snapshotLocked())
	if err != nil {
		r.logger.Error("encode room state", "error", err)
		return nil, false
	}
	return data, true
}

func (r *Room) listenersLocked() []*Player {
	list := make([]*Player, 0, 2+len(r.spectators))
	if r.host != nil {
		list = append(list, r.host)
	}
	if r.other != nil {
		list = append(list, r.other)
	}
	for p := range r.spectators {
		list = append(list, p)
	}
	return list
}

func (r *Room) broadcastLocked() {
	data, ok := r.encodeLocked()
	if !ok {
		return
	}
	for _, p := range r.listenersLocked() {
		if !p.Send(data) {
			r.logger.Debug("dropped room update", "player", p.ID)
		}
	}
}

func (r *Room) closeLocked() []*Player {
	r.closed = true
	return r.listenersLocked()
}

// teardown closes every outbox after the last broadcast and fires onClose.
// Callers must not hold mu.
func (r *Room) teardown(listeners []*Player) {
	for _, p := range listeners {
		p.Close()
	}
	if r.onClose != nil {
		r.onClose(r)
	}
}

func (r *Room) changed() {
	if r.onChange != nil {
		r.onChange(r)
	}
}
