package room

import (
	"sync"

	"github.com/google/uuid"

	"tictactoe/internal/auth"
)

// DefaultOutboxSize is used when NewPlayer is given a non-positive size.
const DefaultOutboxSize = 64

// Player is one live connection. Outbound messages queue in a bounded
// outbox that a transport writer drains.
type Player struct {
	ID       string
	Identity *auth.Identity // nil for anonymous connections

	mu     sync.Mutex
	closed bool
	outbox chan []byte
}

// NewPlayer creates a player with a fresh connection id.
func NewPlayer(identity *auth.Identity, outboxSize int) *Player {
	if outboxSize <= 0 {
		outboxSize = DefaultOutboxSize
	}
	return &Player{
		ID:       uuid.NewString(),
		Identity: identity,
		outbox:   make(chan []byte, outboxSize),
	}
}

func (p *Player) Anonymous() bool { return p.Identity == nil }

// Label is the display name used in room logs.
func (p *Player) Label() string {
	if p.Identity != nil {
		return p.Identity.Name
	}
	return "Guest-" + p.ID[:8]
}

// Send queues msg without blocking. It reports false when the outbox is
// full or closed; the message is dropped for this player only.
func (p *Player) Send(msg []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.outbox <- msg:
		return true
	default:
		return false
	}
}

// Close closes the outbox. Queued messages stay readable.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.outbox)
	}
}

func (p *Player) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Outbox is drained by the connection writer until it is closed.
func (p *Player) Outbox() <-chan []byte { return p.outbox }

// PlayerView is the public JSON form of a player.
type PlayerView struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Anonymous bool   `json:"anonymous"`
}

// View returns the public form of p, or nil for a nil player.
func (p *Player) View() *PlayerView {
	if p == nil {
		return nil
	}
	v := &PlayerView{Name: p.Label(), Anonymous: p.Anonymous()}
	if p.Identity != nil {
		v.ID = p.Identity.ID
	}
	return v
}
