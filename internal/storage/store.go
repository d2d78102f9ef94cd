package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("result not found")

// Result is one finished match. Winner is nil for a draw, otherwise 0 for
// the host and 1 for the opponent.
type Result struct {
	RoomID    string    `json:"roomId"`
	Variant   string    `json:"variant"`
	HostID    string    `json:"hostId,omitempty"`
	HostName  string    `json:"hostName"`
	OtherID   string    `json:"otherId,omitempty"`
	OtherName string    `json:"otherName"`
	Winner    *int      `json:"winner"`
	Moves     int       `json:"moves"`
	Reason    string    `json:"reason"`
	EndedAt   time.Time `json:"endedAt"`
}

// Store handles SQLite persistence of match results.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			room_id    TEXT PRIMARY KEY,
			variant    TEXT NOT NULL,
			host_id    TEXT NOT NULL DEFAULT '',
			host_name  TEXT NOT NULL,
			other_id   TEXT NOT NULL DEFAULT '',
			other_name TEXT NOT NULL DEFAULT '',
			winner     INTEGER,
			moves      INTEGER NOT NULL,
			reason     TEXT NOT NULL,
			ended_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS results_ended_at ON results(ended_at DESC);
	`)
	return err
}

// SaveResult inserts a finished match. Room ids are unique per process, so a
// second save for the same room replaces the first.
func (s *Store) SaveResult(ctx context.Context, res Result) error {
	if res.EndedAt.IsZero() {
		res.EndedAt = time.Now()
	}
	var winner sql.NullInt64
	if res.Winner != nil {
		winner = sql.NullInt64{Int64: int64(*res.Winner), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (room_id, variant, host_id, host_name, other_id, other_name, winner, moves, reason, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			variant = excluded.variant, host_id = excluded.host_id, host_name = excluded.host_name,
			other_id = excluded.other_id, other_name = excluded.other_name, winner = excluded.winner,
			moves = excluded.moves, reason = excluded.reason, ended_at = excluded.ended_at
	`, res.RoomID, res.Variant, res.HostID, res.HostName, res.OtherID, res.OtherName,
		winner, res.Moves, res.Reason, res.EndedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save result %s: %w", res.RoomID, err)
	}
	return nil
}

const resultColumns = "room_id, variant, host_id, host_name, other_id, other_name, winner, moves, reason, ended_at"

// GetResult retrieves the result of one room.
func (s *Store) GetResult(ctx context.Context, roomID string) (*Result, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+resultColumns+" FROM results WHERE room_id = ?", roomID)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListResults returns up to limit results, newest first.
func (s *Store) ListResults(ctx context.Context, limit int) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+resultColumns+" FROM results ORDER BY ended_at DESC, room_id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Result{}
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *res)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*Result, error) {
	var (
		res     Result
		winner  sql.NullInt64
		endedAt int64
	)
	if err := row.Scan(&res.RoomID, &res.Variant, &res.HostID, &res.HostName, &res.OtherID, &res.OtherName,
		&winner, &res.Moves, &res.Reason, &endedAt); err != nil {
		return nil, err
	}
	if winner.Valid {
		w := int(winner.Int64)
		res.Winner = &w
	}
	res.EndedAt = time.UnixMilli(endedAt).UTC()
	return &res, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
