package game

import (
	"fmt"
	"sort"
	"sync"
)

// Variant describes a board: its side length and the run length that wins.
type Variant struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	WinLength int    `json:"winLength"`
}

var (
	// Gomoku is the default fifteen-by-fifteen, five-in-a-row board.
	Gomoku = Variant{Name: "gomoku", Size: 15, WinLength: 5}
	// Classic is the original 3x3 tic-tac-toe board.
	Classic = Variant{Name: "classic", Size: 3, WinLength: 3}
)

// Registry holds all registered board variants.
type Registry struct {
	mu       sync.RWMutex
	variants map[string]Variant
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{variants: make(map[string]Variant)}
}

// DefaultRegistry returns a registry holding Gomoku and Classic.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Gomoku)
	r.Register(Classic)
	return r
}

// Register adds a variant. Panics on duplicate names or impossible boards.
func (r *Registry) Register(v Variant) {
	if v.Size <= 0 || v.WinLength <= 0 || v.WinLength > v.Size {
		panic(fmt.Sprintf("variant %q: win length %d does not fit a %dx%d board", v.Name, v.WinLength, v.Size, v.Size))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.variants[v.Name]; exists {
		panic(fmt.Sprintf("variant %q already registered", v.Name))
	}
	r.variants[v.Name] = v
}

// Get returns a variant by name.
func (r *Registry) Get(name string) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[name]
	return v, ok
}

// List returns all registered variants ordered by name.
func (r *Registry) List() []Variant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Variant, 0, len(r.variants))
	for _, v := range r.variants {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
