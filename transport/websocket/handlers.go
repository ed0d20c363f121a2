package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-timetravel/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/service"
)

func (that *Server) handleNewGame(ctx context.Context, c *client, msg *Message) error {
	session, err := that.gameService.NewGame(ctx)
	if err != nil {
		_ = that.sendError(c, msg.Action, "failed to create a new game")
		return fmt.Errorf("failed to create game: %w", err)
	}

	that.subscribe(c, session.ID)

	return that.sendMessage(c, msg.Action, ResponsePayload{Game: service.NewView(session)})
}

func (that *Server) handleGetGame(ctx context.Context, c *client, msg *Message) error {
	var payload Payload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.GameID == "" {
		return that.sendError(c, msg.Action, "game_id is required")
	}

	session, err := that.gameService.GetGame(ctx, payload.GameID)
	if err != nil {
		return that.sendServiceError(c, msg.Action, err)
	}

	that.subscribe(c, session.ID)

	return that.sendMessage(c, msg.Action, ResponsePayload{Game: service.NewView(session)})
}

func (that *Server) handleGameTurn(ctx context.Context, c *client, msg *Message) error {
	var payload Payload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Cell == nil {
		return that.sendError(c, msg.Action, "cell is required")
	}

	gameID, err := that.currentGame(c, payload)
	if err != nil {
		return that.sendError(c, msg.Action, err.Error())
	}

	result, err := that.gameService.MakeMove(withSender(ctx, c), gameID, *payload.Cell)
	if err != nil {
		return that.sendServiceError(c, msg.Action, err)
	}

	return that.reply(c, msg.Action, result)
}

func (that *Server) handleJump(ctx context.Context, c *client, msg *Message) error {
	var payload Payload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Step == nil {
		return that.sendError(c, msg.Action, "step is required")
	}

	gameID, err := that.currentGame(c, payload)
	if err != nil {
		return that.sendError(c, msg.Action, err.Error())
	}

	result, err := that.gameService.JumpTo(withSender(ctx, c), gameID, *payload.Step)
	if err != nil {
		return that.sendServiceError(c, msg.Action, err)
	}

	return that.reply(c, msg.Action, result)
}

var errNoGame = errors.New("join or create a game first")

// currentGame - the game named in the payload, or the one the client already watches.
func (that *Server) currentGame(c *client, payload Payload) (string, error) {
	if payload.GameID != "" {
		return payload.GameID, nil
	}

	if c.gameID == "" {
		return "", errNoGame
	}

	return c.gameID, nil
}

// reply - answers the sender. Other watchers hear about stored changes through GameUpdated.
func (that *Server) reply(c *client, action string, result *service.Result) error {
	if c.gameID != result.Session.ID {
		that.subscribe(c, result.Session.ID)
	}

	return that.sendMessage(c, action, ResponsePayload{
		Game:   service.NewView(result.Session),
		Notice: result.Notice,
	})
}

func (that *Server) sendServiceError(c *client, action string, err error) error {
	if errors.Is(err, apperror.ErrGameNotFound) {
		return that.sendError(c, action, apperror.ErrGameNotFound.Error())
	}

	if sendErr := that.sendError(c, action, "internal error"); sendErr != nil {
		return sendErr
	}

	return fmt.Errorf("%s failed: %w", action, err)
}
