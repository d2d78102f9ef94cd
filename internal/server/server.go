package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"tictactoe/internal/auth"
	"tictactoe/internal/game"
	"tictactoe/internal/room"
	"tictactoe/internal/storage"
)

const (
	defaultResultsLimit = 20
	maxResultsLimit     = 100
)

// ResultLister reads the history of finished matches.
type ResultLister interface {
	ListResults(ctx context.Context, limit int) ([]storage.Result, error)
}

// Options tunes connection handling.
type Options struct {
	DefaultVariant string
	OutboxSize     int
	WriteTimeout   time.Duration
	// Static, when set, is served at "/".
	Static fs.FS
}

// Server is the HTTP server.
type Server struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	directory *room.Directory
	registry  *game.Registry
	resolver  auth.Resolver
	results   ResultLister
	opts      Options
}

// New creates a server with all routes. results may be nil.
func New(logger *slog.Logger, directory *room.Directory, registry *game.Registry, resolver auth.Resolver, results ResultLister, opts Options) *Server {
	if opts.DefaultVariant == "" {
		opts.DefaultVariant = game.Gomoku.Name
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger.With("component", "server"),
		directory: directory,
		registry:  registry,
		resolver:  resolver,
		results:   results,
		opts:      opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/variants", s.handleListVariants)
	s.mux.HandleFunc("GET /api/results", s.handleListResults)

	// WebSocket routes
	s.mux.HandleFunc("GET /rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /rooms/create", s.handleCreateRoom)
	s.mux.HandleFunc("GET /rooms/{room_id}", s.handleJoinRoom)

	if s.opts.Static != nil {
		s.mux.Handle("/", http.FileServer(http.FS(s.opts.Static)))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": s.directory.Len()})
}

func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultResultsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxResultsLimit)
	}
	if s.results == nil {
		writeJSON(w, http.StatusOK, []storage.Result{})
		return
	}
	list, err := s.results.ListResults(r.Context(), limit)
	if err != nil {
		s.logger.Error("list results", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load results"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
