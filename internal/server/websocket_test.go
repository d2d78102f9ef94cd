package server

import (
	"net/url"
	"testing"

	"nhooyr.io/websocket"
)

func TestCreateRoom(t *testing.T) {
	env := setupTestEnv(t)
	_, v := env.createRoom(t, "alice", nil)

	if v.Host == nil || v.Host.Name != "alice" || v.Host.Anonymous {
		t.Fatalf("unexpected host: %+v", v.Host)
	}
	if v.Other != nil || v.Started || v.Size != 15 || v.Variant != "gomoku" {
		t.Fatalf("unexpected new room: %+v", v)
	}
	if _, ok := env.dir.Room(v.ID); !ok {
		t.Fatal("room not registered")
	}
}

func TestCreateRoomVariant(t *testing.T) {
	env := setupTestEnv(t)
	_, v := env.createRoom(t, "alice", url.Values{"variant": {"classic"}})
	if v.Variant != "classic" || v.Size != 3 || len(v.Board) != 3 {
		t.Fatalf("expected classic board, got %+v", v)
	}
}

func TestCreateRoomUnknownVariant(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t, "/rooms/create", "alice", url.Values{"variant": {"chess"}})
	if msg := readError(t, conn); msg != "Unknown game variant" {
		t.Fatalf("unexpected error %q", msg)
	}
	if status := expectClosed(t, conn); status != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", status)
	}
	if env.dir.Len() != 0 {
		t.Fatal("no room should be created")
	}
}

func TestCreateRoomRequiresLogin(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t, "/rooms/create", "", nil)
	if msg := readError(t, conn); msg != "Not logged in yet!" {
		t.Fatalf("unexpected error %q", msg)
	}
	if status := expectClosed(t, conn); status != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", status)
	}
}

func TestJoinMissingRoom(t *testing.T) {
	env := setupTestEnv(t)
	conn := env.dial(t, "/rooms/nope", "bob", nil)
	if msg := readError(t, conn); msg != "room does not exist" {
		t.Fatalf("unexpected error %q", msg)
	}
	if status := expectClosed(t, conn); status != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", status)
	}
}

func TestAnonymousCanJoin(t *testing.T) {
	env := setupTestEnv(t)
	host, v := env.createRoom(t, "alice", nil)
	_, jv := env.joinRoom(t, v.ID, "", host)
	if jv.Other == nil || !jv.Other.Anonymous || len(jv.Other.Name) != len("Guest-")+8 {
		t.Fatalf("expected anonymous opponent, got %+v", jv.Other)
	}
}

func TestPingPong(t *testing.T) {
	env := setupTestEnv(t)
	host, _ := env.createRoom(t, "alice", nil)
	expectPong(t, host)
}

func TestRequestResendsState(t *testing.T) {
	env := setupTestEnv(t)
	host, v := env.createRoom(t, "alice", nil)
	send(t, host, "REQUEST")
	again := readRoom(t, host)
	if again.ID != v.ID {
		t.Fatalf("expected room %s, got %s", v.ID, again.ID)
	}
}

func TestInvalidMessages(t *testing.T) {
	env := setupTestEnv(t)
	host, _ := env.createRoom(t, "alice", nil)
	for _, text := range []string{"HELLO", "MOVE a b", "MOVE 1", `{"type":"start"}`} {
		send(t, host, text)
		if msg := readError(t, host); msg != "Invalid message data" {
			t.Fatalf("%q: unexpected error %q", text, msg)
		}
	}
}

func TestBinaryFrameClosesConnection(t *testing.T) {
	env := setupTestEnv(t)
	host, _ := env.createRoom(t, "alice", nil)

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	if err := host.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if status := expectClosed(t, host); status != websocket.StatusProtocolError {
		t.Fatalf("expected protocol error close, got %v", status)
	}
	waitFor(t, "room teardown", func() bool { return env.dir.Len() == 0 })
}

func TestChat(t *testing.T) {
	env := setupTestEnv(t)
	host, v := env.createRoom(t, "alice", nil)
	bob, _ := env.joinRoom(t, v.ID, "bob", host)

	send(t, bob, "CHAT hello there")
	for _, c := range []*websocket.Conn{host, bob} {
		if got := readRoom(t, c).lastLog(); got != "[bob]: hello there" {
			t.Fatalf("unexpected log %q", got)
		}
	}

	send(t, bob, "CHAT    ")
	if msg := readError(t, bob); msg != "Chat message is empty" {
		t.Fatalf("unexpected error %q", msg)
	}
	expectPong(t, host)
}

func TestSpectatorJoinAndRestrictions(t *testing.T) {
	env := setupTestEnv(t)
	host, bob, id := env.startedGame(t, nil)

	carol, cv := env.joinRoom(t, id, "carol", host, bob)
	if cv.Spectators != 1 || cv.lastLog() != "carol is spectating" {
		t.Fatalf("unexpected spectator state: %+v", cv)
	}

	send(t, carol, "MOVE 1 1")
	if msg := readError(t, carol); msg != "You are spectating this game" {
		t.Fatalf("unexpected error %q", msg)
	}
	send(t, carol, "START")
	if msg := readError(t, carol); msg != "Game has already started!" {
		t.Fatalf("unexpected error %q", msg)
	}

	send(t, carol, "CHAT hi")
	for _, c := range []*websocket.Conn{host, bob, carol} {
		if got := readRoom(t, c).lastLog(); got != "[carol (spectator)]: hi" {
			t.Fatalf("unexpected log %q", got)
		}
	}

	// Spectators see moves too.
	v := move(t, host, 7, 7, host, bob, carol)
	if v.Moves != 1 {
		t.Fatalf("expected 1 move, got %d", v.Moves)
	}

	carol.CloseNow()
	for _, c := range []*websocket.Conn{host, bob} {
		if v := readRoom(t, c); v.Spectators != 0 || v.Ended {
			t.Fatalf("spectator leaving should only update the count: %+v", v)
		}
	}
}

func TestStartErrors(t *testing.T) {
	env := setupTestEnv(t)
	host, v := env.createRoom(t, "alice", nil)

	send(t, host, "START")
	if msg := readError(t, host); msg != "Not enough players to start!" {
		t.Fatalf("unexpected error %q", msg)
	}

	send(t, host, "MOVE 0 0")
	if msg := readError(t, host); msg != "Game hasn't started yet!" {
		t.Fatalf("unexpected error %q", msg)
	}

	bob, _ := env.joinRoom(t, v.ID, "bob", host)
	send(t, host, "START")
	readRoom(t, host)
	readRoom(t, bob)

	send(t, host, "START")
	if msg := readError(t, host); msg != "Game has already started!" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestNotYourTurn(t *testing.T) {
	env := setupTestEnv(t)
	host, bob, _ := env.startedGame(t, nil)

	send(t, bob, "MOVE 0 0")
	if msg := readError(t, bob); msg != "Not your turn yet!" {
		t.Fatalf("unexpected error %q", msg)
	}
	expectPong(t, host)
}

func TestOccupiedCell(t *testing.T) {
	env := setupTestEnv(t)
	host, bob, _ := env.startedGame(t, nil)
	move(t, host, 3, 3, host, bob)

	send(t, bob, "MOVE 3 3")
	if msg := readError(t, bob); msg != "Invalid move!" {
		t.Fatalf("unexpected error %q", msg)
	}
}

func TestHostLeavesLobby(t *testing.T) {
	env := setupTestEnv(t)
	host, v := env.createRoom(t, "alice", nil)
	bob, _ := env.joinRoom(t, v.ID, "bob", host)

	host.CloseNow()
	bv := readRoom(t, bob)
	if bv.Host == nil || bv.Host.Name != "bob" || bv.Other != nil {
		t.Fatalf("expected bob promoted, got host=%+v other=%+v", bv.Host, bv.Other)
	}
	if bv.lastLog() != "bob is now the host" {
		t.Fatalf("unexpected log %q", bv.lastLog())
	}

	bob.CloseNow()
	waitFor(t, "empty room removal", func() bool {
		_, ok := env.dir.Room(v.ID)
		return !ok
	})
}

func TestRoomList(t *testing.T) {
	env := setupTestEnv(t)
	watcher := env.dial(t, "/rooms", "", nil)
	if list := readList(t, watcher); len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}

	host, v := env.createRoom(t, "alice", nil)
	list := readList(t, watcher)
	if len(list) != 1 || list[0].ID != v.ID || list[0].Host.Name != "alice" {
		t.Fatalf("unexpected list: %+v", list)
	}

	env.joinRoom(t, v.ID, "bob", host)
	list = readList(t, watcher)
	if list[0].Other == nil || list[0].Other.Name != "bob" {
		t.Fatalf("expected bob in the list, got %+v", list[0])
	}

	send(t, watcher, "REQUEST")
	if again := readList(t, watcher); len(again) != 1 {
		t.Fatalf("expected resend of 1 room, got %d", len(again))
	}

	send(t, watcher, "START")
	if msg := readError(t, watcher); msg != "Invalid message data" {
		t.Fatalf("unexpected error %q", msg)
	}
}
