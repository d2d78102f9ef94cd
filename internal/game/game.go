package game

import "fmt"

// State is the rules engine for one match. It is not safe for concurrent
// use; the owning room serializes access.
type State struct {
	variant Variant
	board   Board
	started bool
	ended   bool
	winner  Mark
	turn    Mark
	moves   int
}

// NewState returns an unstarted match on an empty board.
func NewState(v Variant) *State {
	return &State{
		variant: v,
		board:   newBoard(v.Size),
		winner:  NoMark,
		turn:    Host,
	}
}

// Start marks the match as begun. The host always moves first.
func (s *State) Start() error {
	if s.started || s.ended {
		return ErrAlreadyStarted
	}
	s.started = true
	return nil
}

// Move places mark at (row, column). Checks run in a fixed order so that
// an occupied cell is reported as ErrInvalidMove regardless of whose turn
// it is.
func (s *State) Move(row, column int, mark Mark) error {
	if !s.started {
		return ErrNotStarted
	}
	if s.ended {
		return ErrAlreadyEnded
	}
	if !s.board.inRange(row, column) || s.board.At(row, column) != NoMark {
		return fmt.Errorf("%w: (%d, %d)", ErrInvalidMove, row, column)
	}
	if mark != s.turn {
		return &TurnError{Spectator: mark != Host && mark != Opponent}
	}

	s.board.set(row, column, mark)
	s.moves++
	s.turn = s.turn.Other()

	if s.board.longestRun(row, column) >= s.variant.WinLength {
		s.End(mark)
	} else if s.moves == s.variant.Size*s.variant.Size {
		s.End(NoMark)
	}
	return nil
}

// End finishes the match with winner, or as a draw when winner is NoMark.
// It skips the run check and does nothing once the match has ended.
func (s *State) End(winner Mark) {
	if s.ended {
		return
	}
	s.started = true
	s.ended = true
	s.winner = winner
}

func (s *State) Variant() Variant { return s.variant }
func (s *State) Started() bool    { return s.started }
func (s *State) Ended() bool      { return s.ended }
func (s *State) Turn() Mark       { return s.turn }
func (s *State) Moves() int       { return s.moves }

// Board returns a copy of the grid.
func (s *State) Board() Board { return s.board.clone() }

// Winner reports the winning mark. ok is false while the match is running
// and after a draw.
func (s *State) Winner() (Mark, bool) {
	return s.winner, s.ended && s.winner != NoMark
}

// Draw reports whether the match ended without a winner.
func (s *State) Draw() bool {
	return s.ended && s.winner == NoMark
}

// Snapshot is the wire form of a match.
type Snapshot struct {
	Board   Board `json:"board"`
	Size    int   `json:"size"`
	Turn    Mark  `json:"turn"`
	Started bool  `json:"started"`
	Ended   bool  `json:"ended"`
	Winner  Mark  `json:"winner"`
	Moves   int   `json:"moves"`
}

// Snapshot copies the current match into its wire form.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Board:   s.board.clone(),
		Size:    s.variant.Size,
		Turn:    s.turn,
		Started: s.started,
		Ended:   s.ended,
		Winner:  s.winner,
		Moves:   s.moves,
	}
}

// LobbySnapshot is the wire form of a room whose match has not been created.
func LobbySnapshot(v Variant) Snapshot {
	return NewState(v).Snapshot()
}
