package game

import "errors"

var (
	ErrAlreadyStarted = errors.New("game has already started")
	ErrNotStarted     = errors.New("game has not started")
	ErrAlreadyEnded   = errors.New("game has already ended")
	ErrInvalidMove    = errors.New("invalid move")
	ErrInvalidTurn    = errors.New("not your turn")
)

// TurnError is returned by State.Move when the acting mark does not own the
// current turn. Spectator is set when the caller holds no mark at all.
type TurnError struct {
	Spectator bool
}

func (e *TurnError) Error() string {
	if e.Spectator {
		return "spectators cannot move"
	}
	return ErrInvalidTurn.Error()
}

// Is lets errors.Is(err, ErrInvalidTurn) match both flavours.
func (e *TurnError) Is(target error) bool {
	return target == ErrInvalidTurn
}
