package room

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tictactoe/internal/game"
	"tictactoe/internal/protocol"
	"tictactoe/internal/storage"
)

var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrIDExhausted    = errors.New("could not allocate a room id")
)

const (
	idAttempts  = 16
	saveTimeout = 5 * time.Second
)

// ResultStore records finished matches.
type ResultStore interface {
	SaveResult(ctx context.Context, res storage.Result) error
}

// Directory indexes open rooms by id and pushes the room list to listeners.
//
// Lock order: notifyMu, then mu, then a room's own lock. Rooms call back into
// the directory only after releasing their lock.
type Directory struct {
	logger   *slog.Logger
	registry *game.Registry
	results  ResultStore
	newID    func() (string, error)

	notifyMu sync.Mutex

	mu        sync.RWMutex
	rooms     map[string]*Room
	listeners map[*Player]struct{}
}

// NewDirectory creates an empty directory. results may be nil.
func NewDirectory(logger *slog.Logger, registry *game.Registry, results ResultStore) *Directory {
	return &Directory{
		logger:    logger.With("component", "room-directory"),
		registry:  registry,
		results:   results,
		newID:     generateID,
		rooms:     make(map[string]*Room),
		listeners: make(map[*Player]struct{}),
	}
}

// CreateRoom opens a room of the named variant owned by host, pushes its
// state to the host and refreshes every list listener.
func (d *Directory) CreateRoom(host *Player, variantName string) (*Room, error) {
	log := d.logger.With("method", "CreateRoom")

	v, ok := d.registry.Get(variantName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variantName)
	}

	d.mu.Lock()
	id, err := d.allocateIDLocked()
	if err != nil {
		d.mu.Unlock()
		return nil, err
	}
	r := New(id, v, host)
	r.logger = d.logger.With("room", id)
	r.onChange = d.roomChanged
	r.onClose = d.roomClosed
	d.rooms[id] = r
	d.mu.Unlock()

	log.Info("room created", "room", id, "variant", v.Name, "host", host.Label())
	r.Sync()
	d.NotifyAll()
	return r, nil
}

func (d *Directory) allocateIDLocked() (string, error) {
	for i := 0; i < idAttempts; i++ {
		id, err := d.newID()
		if err != nil {
			return "", fmt.Errorf("generate room id: %w", err)
		}
		if _, taken := d.rooms[id]; !taken {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

// generateID returns 8 random bytes as unpadded URL-safe base64.
func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Room looks up an open room.
func (d *Directory) Room(id string) (*Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.rooms[id]
	return r, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Rooms returns a summary of every open room ordered by id.
func (d *Directory) Rooms() []Summary {
	d.mu.RLock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.RUnlock()

	list := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		list = append(list, r.Summary())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// AddListener subscribes p to the room list and sends it the current list.
func (d *Directory) AddListener(p *Player) {
	d.mu.Lock()
	d.listeners[p] = struct{}{}
	d.mu.Unlock()
	d.Notify(p)
}

func (d *Directory) RemoveListener(p *Player) {
	d.mu.Lock()
	delete(d.listeners, p)
	d.mu.Unlock()
}

// Notify sends the current room list to p only.
func (d *Directory) Notify(p *Player) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	if data, ok := d.encodeList(); ok {
		p.Send(data)
	}
}

// NotifyAll sends the current room list to every listener. Calls are
// serialized so listeners never see an older list after a newer one.
func (d *Directory) NotifyAll() {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()

	data, ok := d.encodeList()
	if !ok {
		return
	}
	d.mu.RLock()
	listeners := make([]*Player, 0, len(d.listeners))
	for p := range d.listeners {
		listeners = append(listeners, p)
	}
	d.mu.RUnlock()

	for _, p := range listeners {
		if !p.Send(data) {
			d.logger.Debug("dropped room list update", "listener", p.ID)
		}
	}
}

func (d *Directory) encodeList() ([]byte, bool) {
	data, err := protocol.Data(d.Rooms())
	if err != nil {
		d.logger.Error("encode room list", "error", err)
		return nil, false
	}
	return data, true
}

// Close shuts every room and disconnects every list listener.
func (d *Directory) Close() {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	listeners := d.listeners
	d.listeners = make(map[*Player]struct{})
	d.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	for p := range listeners {
		p.Close()
	}
}

func (d *Directory) roomChanged(*Room) {
	d.NotifyAll()
}

// roomClosed unregisters r, records its result and refreshes listeners.
// Repeated calls for the same room do nothing.
func (d *Directory) roomClosed(r *Room) {
	log := d.logger.With("method", "roomClosed", "room", r.ID())

	d.mu.Lock()
	current, ok := d.rooms[r.ID()]
	if ok && current == r {
		delete(d.rooms, r.ID())
	}
	d.mu.Unlock()
	if !ok || current != r {
		return
	}
	log.Info("room closed")

	if res, played := r.Result(); played && d.results != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := d.results.SaveResult(ctx, toRecord(res)); err != nil {
			log.Error("save result", "error", err)
		}
	}
	d.NotifyAll()
}

func toRecord(res Result) storage.Result {
	rec := storage.Result{
		RoomID:  res.RoomID,
		Variant: res.Variant,
		Moves:   res.Moves,
		Reason:  res.Reason,
		EndedAt: res.EndedAt,
	}
	if res.Host != nil {
		rec.HostID, rec.HostName = res.Host.ID, res.Host.Name
	}
	if res.Other != nil {
		rec.OtherID, rec.OtherName = res.Other.ID, res.Other.Name
	}
	if res.Winner != game.NoMark {
		w := int(res.Winner)
		rec.Winner = &w
	}
	return rec
}
