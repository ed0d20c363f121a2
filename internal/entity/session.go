package entity

import "time"

// Session is a stored game identified by ID.
type Session struct {
	ID        string    `json:"id"`
	State     GameState `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     NewGameState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (that *Session) Outcome() Outcome {
	return Status(that.State)
}

func (that *Session) IsFinished() bool {
	return that.Outcome().IsFinished()
}
