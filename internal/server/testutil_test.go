package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"nhooyr.io/websocket"

	"tictactoe/internal/auth"
	"tictactoe/internal/game"
	"tictactoe/internal/protocol"
	"tictactoe/internal/room"
	"tictactoe/internal/storage"
)

// --- Test environment ---

type testEnv struct {
	ts    *httptest.Server
	dir   *room.Directory
	store *storage.Store
	jwt   *auth.JWTResolver
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := game.DefaultRegistry()
	dir := room.NewDirectory(logger, reg, store)
	jwt := auth.NewJWTResolver("test-secret")

	srv := New(logger, dir, reg, jwt, store, Options{
		OutboxSize:   256,
		WriteTimeout: 2 * time.Second,
		Static: fstest.MapFS{
			"index.html": &fstest.MapFile{Data: []byte("<html><body>test</body></html>")},
		},
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(dir.Close)

	return &testEnv{ts: ts, dir: dir, store: store, jwt: jwt}
}

func (e *testEnv) token(t *testing.T, name string) string {
	t.Helper()
	tok, err := e.jwt.Issue(auth.Identity{ID: "id-" + name, Name: name}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- WebSocket helpers ---

func (e *testEnv) wsURL(path string, query url.Values) string {
	u := strings.Replace(e.ts.URL, "http://", "ws://", 1) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// dial connects to path, signed in as name unless name is empty.
func (e *testEnv) dial(t *testing.T, path, name string, query url.Values) *websocket.Conn {
	t.Helper()
	if query == nil {
		query = url.Values{}
	}
	if name != "" {
		query.Set("token", e.token(t, name))
	}
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.wsURL(path, query), nil)
	if err != nil {
		t.Fatalf("ws dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		t.Fatalf("ws write %q: %v", text, err)
	}
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	return data
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.RawEnvelope {
	t.Helper()
	data := readRaw(t, conn)
	env, ok, err := protocol.Decode(data)
	if err != nil || !ok {
		t.Fatalf("expected an envelope, got %q (%v)", data, err)
	}
	return env
}

// readError reads one message and returns its error text.
func readError(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	env := readEnvelope(t, conn)
	if !env.Error {
		t.Fatalf("expected error envelope, got data %s", env.Data)
	}
	return env.Message
}

type playerJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Anonymous bool   `json:"anonymous"`
}

type roomJSON struct {
	ID         string      `json:"id"`
	Variant    string      `json:"variant"`
	Logs       []string    `json:"logs"`
	Host       *playerJSON `json:"host"`
	Other      *playerJSON `json:"other"`
	Spectators int         `json:"spectators"`
	Board      [][]*int    `json:"board"`
	Size       int         `json:"size"`
	Turn       int         `json:"turn"`
	Started    bool        `json:"started"`
	Ended      bool        `json:"ended"`
	Winner     *int        `json:"winner"`
	Moves      int         `json:"moves"`
}

func (r roomJSON) lastLog() string {
	if len(r.Logs) == 0 {
		return ""
	}
	return r.Logs[len(r.Logs)-1]
}

func readRoom(t *testing.T, conn *websocket.Conn) roomJSON {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Error {
		t.Fatalf("expected room state, got error %q", env.Message)
	}
	var v roomJSON
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode room: %v", err)
	}
	return v
}

type summaryJSON struct {
	ID      string      `json:"id"`
	Variant string      `json:"variant"`
	Host    *playerJSON `json:"host"`
	Other   *playerJSON `json:"other"`
	Started bool        `json:"started"`
}

func readList(t *testing.T, conn *websocket.Conn) []summaryJSON {
	t.Helper()
	env := readEnvelope(t, conn)
	if env.Error {
		t.Fatalf("expected room list, got error %q", env.Message)
	}
	var list []summaryJSON
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	return list
}

// expectPong proves no other message was queued ahead of the reply.
func expectPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, "PING")
	if got := string(readRaw(t, conn)); got != protocol.Pong {
		t.Fatalf("expected PONG, got %q", got)
	}
}

// expectClosed reads until the connection ends and returns the close status.
func expectClosed(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return websocket.CloseStatus(err)
		}
	}
}

// --- Room helpers ---

// createRoom opens a room as name and returns the host connection and id.
func (e *testEnv) createRoom(t *testing.T, name string, query url.Values) (*websocket.Conn, roomJSON) {
	t.Helper()
	conn := e.dial(t, "/rooms/create", name, query)
	v := readRoom(t, conn)
	if v.ID == "" {
		t.Fatal("expected a room id")
	}
	return conn, v
}

// joinRoom joins as name; others are the connections that receive the join
// broadcast and are drained here.
func (e *testEnv) joinRoom(t *testing.T, id, name string, others ...*websocket.Conn) (*websocket.Conn, roomJSON) {
	t.Helper()
	conn := e.dial(t, "/rooms/"+id, name, nil)
	v := readRoom(t, conn)
	for _, o := range others {
		readRoom(t, o)
	}
	return conn, v
}

// startedGame returns host and opponent connections for a started room.
func (e *testEnv) startedGame(t *testing.T, query url.Values) (host, other *websocket.Conn, id string) {
	t.Helper()
	host, v := e.createRoom(t, "alice", query)
	other, _ = e.joinRoom(t, v.ID, "bob", host)
	send(t, host, "START")
	readRoom(t, host)
	readRoom(t, other)
	return host, other, v.ID
}

// move sends MOVE as mover and reads the broadcast on every connection.
func move(t *testing.T, mover *websocket.Conn, row, col int, all ...*websocket.Conn) roomJSON {
	t.Helper()
	send(t, mover, "MOVE "+strconv.Itoa(row)+" "+strconv.Itoa(col))
	var v roomJSON
	for _, c := range all {
		v = readRoom(t, c)
	}
	return v
}
