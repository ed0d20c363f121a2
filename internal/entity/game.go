package entity

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-timetravel/internal/apperror"
)

const (
	StatusOngoing = "ongoing"
	StatusWon     = "won"
	StatusTied    = "tied"
)

const (
	BoardSize = 9
	boardSide = 3
)

var (
	ErrEmptyHistory   = errors.New("history is empty")
	ErrCorruptHistory = errors.New("history is corrupt")

	WinCombos = [8][3]int{
		{0, 1, 2},
		{3, 4, 5},
		{6, 7, 8},
		{0, 3, 6},
		{1, 4, 7},
		{2, 5, 8},
		{0, 4, 8},
		{2, 4, 6},
	}
)

// Board is a row-major 3x3 grid, index = row*3 + col.
type Board [BoardSize]Cell

// HistoryEntry is one immutable snapshot of the board.
// ChangedIndex is nil only for the initial entry.
type HistoryEntry struct {
	Board        Board `json:"board"`
	ChangedIndex *int  `json:"changed_index,omitempty"`
}

// Changed - returns the cell filled to reach this snapshot.
func (that HistoryEntry) Changed() (int, bool) {
	if that.ChangedIndex == nil {
		return 0, false
	}

	return *that.ChangedIndex, true
}

// GameState is the move history plus a pointer to the current snapshot.
// Values are never mutated: every operation returns a new GameState.
type GameState struct {
	History []HistoryEntry `json:"history"`
	Step    int            `json:"step"`
}

type Outcome struct {
	Status string `json:"status"`
	Winner Cell   `json:"winner,omitempty"`
	Next   Cell   `json:"next,omitempty"`
}

func (that Outcome) IsFinished() bool {
	return that.Status != StatusOngoing
}

type MoveLabel struct {
	Step  int    `json:"step"`
	Label string `json:"label"`
}

// NewGameState - returns a game holding only the all-empty board.
func NewGameState() GameState {
	return GameState{
		History: []HistoryEntry{{}},
		Step:    0,
	}
}

func (that GameState) Current() HistoryEntry {
	return that.History[that.Step]
}

func (that GameState) Len() int {
	return len(that.History)
}

// Mover - returns the player whose turn it is at the current step.
func (that GameState) Mover() Cell {
	return Mover(that.Step)
}

// Validate - checks the history invariants of a state that came from outside the engine.
func (that GameState) Validate() error {
	if len(that.History) == 0 {
		return ErrEmptyHistory
	}

	if that.Step < 0 || that.Step >= len(that.History) {
		return fmt.Errorf("%w: step %d of %d", ErrCorruptHistory, that.Step, len(that.History))
	}

	first := that.History[0]
	if _, ok := first.Changed(); ok || first.Board != (Board{}) {
		return fmt.Errorf("%w: entry 0 is not the empty board", ErrCorruptHistory)
	}

	for i := 1; i < len(that.History); i++ {
		prev, entry := that.History[i-1].Board, that.History[i]

		changed, ok := entry.Changed()
		if !ok || changed < 0 || changed >= BoardSize {
			return fmt.Errorf("%w: entry %d has no valid changed index", ErrCorruptHistory, i)
		}

		if prev[changed] != EmptyCell || entry.Board[changed] != Mover(i-1) {
			return fmt.Errorf("%w: entry %d cell %d", ErrCorruptHistory, i, changed)
		}

		expected := prev
		expected[changed] = entry.Board[changed]
		if expected != entry.Board {
			return fmt.Errorf("%w: entry %d changes more than one cell", ErrCorruptHistory, i)
		}
	}

	return nil
}

// Mover - X moves on even steps, O on odd ones.
func Mover(step int) Cell {
	if step%2 == 0 {
		return PlayerX
	}

	return PlayerO
}

// Evaluate - re-checks the board from scratch on every call.
func Evaluate(board Board) Outcome {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return Outcome{Status: StatusWon, Winner: a}
		}
	}

	// the game continues while any square is empty
	for _, cell := range board {
		if cell == EmptyCell {
			return Outcome{Status: StatusOngoing}
		}
	}

	return Outcome{Status: StatusTied}
}

// Status - returns the outcome at the current step, with the next mover for ongoing games.
func Status(state GameState) Outcome {
	outcome := Evaluate(state.Current().Board)
	if !outcome.IsFinished() {
		outcome.Next = state.Mover()
	}

	return outcome
}

// CheckMove - reports why ApplyMove would ignore the move, or nil if it would be played.
func CheckMove(state GameState, cell int) error {
	if cell < 0 || cell >= BoardSize {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	board := state.Current().Board

	if Evaluate(board).IsFinished() {
		return apperror.ErrGameFinished
	}

	if board[cell] != EmptyCell {
		return fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, cell)
	}

	return nil
}

// ApplyMove - places the mover's mark on cell. Invalid moves return state unchanged.
// Entries past the current step are dropped before the new one is appended.
func ApplyMove(state GameState, cell int) GameState {
	if CheckMove(state, cell) != nil {
		return state
	}

	board := state.Current().Board
	board[cell] = state.Mover()
	changed := cell

	history := make([]HistoryEntry, state.Step+1, state.Step+2)
	copy(history, state.History[:state.Step+1])
	history = append(history, HistoryEntry{Board: board, ChangedIndex: &changed})

	return GameState{
		History: history,
		Step:    len(history) - 1,
	}
}

// CheckRewind - reports why Rewind would ignore the step, or nil.
func CheckRewind(state GameState, step int) error {
	if step < 0 || step >= len(state.History) {
		return fmt.Errorf("%w: step %d of %d", apperror.ErrStepOutOfRange, step, len(state.History))
	}

	return nil
}

// Rewind - truncates history to entries [0..step]. Out-of-range steps are rejected as a no-op.
func Rewind(state GameState, step int) GameState {
	if CheckRewind(state, step) != nil {
		return state
	}

	history := make([]HistoryEntry, step+1)
	copy(history, state.History[:step+1])

	return GameState{
		History: history,
		Step:    step,
	}
}

func CoordinatesOf(cell int) (int, int) {
	return cell / boardSide, cell % boardSide
}

// RenderLabel - returns the time-travel button label for a step.
// Steps outside the history get an empty label.
func RenderLabel(historyLength, step, changedIndex int) string {
	if step < 0 || step >= historyLength {
		return ""
	}

	if step == 0 {
		return "Go to game start"
	}

	row, col := CoordinatesOf(changedIndex)

	return fmt.Sprintf("Go to move #%d: (%d, %d)", step, row, col)
}

// Moves - returns one label per history entry.
func Moves(state GameState) []MoveLabel {
	moves := make([]MoveLabel, 0, len(state.History))
	for step, entry := range state.History {
		changed, _ := entry.Changed()
		moves = append(moves, MoveLabel{
			Step:  step,
			Label: RenderLabel(len(state.History), step, changed),
		})
	}

	return moves
}

func StatusLabel(outcome Outcome) string {
	switch outcome.Status {
	case StatusWon:
		return "Winner: " + string(outcome.Winner)
	case StatusTied:
		return "Tie!"
	default:
		return "Next player: " + string(outcome.Next)
	}
}
