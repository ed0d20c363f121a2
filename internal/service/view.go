package service

import "github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"

// View is the wire form of a session shown by the transports.
type View struct {
	ID     string             `json:"id"`
	Board  entity.Board       `json:"board"`
	Step   int                `json:"step"`
	Status string             `json:"status"`
	Winner entity.Cell        `json:"winner,omitempty"`
	Next   entity.Cell        `json:"next,omitempty"`
	Label  string             `json:"label"`
	Moves  []entity.MoveLabel `json:"moves"`
	Notice string             `json:"notice,omitempty"`
}

func NewView(session *entity.Session) *View {
	outcome := session.Outcome()

	return &View{
		ID:     session.ID,
		Board:  session.State.Current().Board,
		Step:   session.State.Step,
		Status: outcome.Status,
		Winner: outcome.Winner,
		Next:   outcome.Next,
		Label:  entity.StatusLabel(outcome),
		Moves:  entity.Moves(session.State),
	}
}

// NewResultView - like NewView, carrying the notice of an ignored command.
func NewResultView(result *Result) *View {
	view := NewView(result.Session)
	view.Notice = result.Notice

	return view
}
