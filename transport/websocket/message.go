package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rocketscienceinc/tictactoe-timetravel/internal/service"
)

const (
	actionNewGame  = "game:new"
	actionGetGame  = "game:get"
	actionTurn     = "game:turn"
	actionJump     = "game:jump"
	actionUpdate   = "game:update"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Payload struct {
	GameID string `json:"game_id,omitempty"`
	Cell   *int   `json:"cell,omitempty"`
	Step   *int   `json:"step,omitempty"`
}

type ResponsePayload struct {
	Game   *service.View `json:"game,omitempty"`
	Notice string        `json:"notice,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (that *Server) sendMessage(c *client, action string, payload ResponsePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err = c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err = c.conn.WriteJSON(Message{Action: action, Payload: body}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *Server) sendError(c *client, action, errorMessage string) error {
	return that.sendMessage(c, action, ResponsePayload{Error: errorMessage})
}
