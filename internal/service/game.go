package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"
)

type GameService interface {
	NewGame(ctx context.Context) (*entity.Session, error)
	GetGame(ctx context.Context, id string) (*entity.Session, error)
	DeleteGame(ctx context.Context, id string) error

	MakeMove(ctx context.Context, id string, cell int) (*Result, error)
	JumpTo(ctx context.Context, id string, step int) (*Result, error)

	Listen(listener UpdateListener)
}

// UpdateListener is called after a command changed a stored game.
// ctx is the context of the request that made the change.
type UpdateListener func(ctx context.Context, session *entity.Session)

type gameRepo interface {
	CreateOrUpdate(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// Result is a session after a command. Notice is set when the engine ignored the command.
type Result struct {
	Session *entity.Session
	Notice  string
}

type gameService struct {
	logger   *slog.Logger
	gameRepo gameRepo
	locks    *gameLocks

	listeners      []UpdateListener
	listenersMutex sync.RWMutex

	now   func() time.Time
	newID func() string
}

func NewGameService(logger *slog.Logger, gameRepo gameRepo) GameService {
	return &gameService{
		logger:   logger.With("component", "game_service"),
		gameRepo: gameRepo,
		locks:    newGameLocks(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (that *gameService) NewGame(ctx context.Context) (*entity.Session, error) {
	session := entity.NewSession(that.newID(), that.now())

	if err := that.gameRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create game in storage: %w", err)
	}

	that.logger.Info("game created", "gameID", session.ID)

	return session, nil
}

func (that *gameService) GetGame(ctx context.Context, id string) (*entity.Session, error) {
	session, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve game from storage: %w", err)
	}

	return session, nil
}

func (that *gameService) DeleteGame(ctx context.Context, id string) error {
	unlock := that.locks.lock(id)
	defer unlock()

	if err := that.gameRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	that.logger.Info("game deleted", "gameID", id)

	return nil
}

func (that *gameService) MakeMove(ctx context.Context, id string, cell int) (*Result, error) {
	return that.apply(ctx, id, "makeMove", func(state entity.GameState) (entity.GameState, error) {
		return entity.ApplyMove(state, cell), entity.CheckMove(state, cell)
	})
}

func (that *gameService) JumpTo(ctx context.Context, id string, step int) (*Result, error) {
	return that.apply(ctx, id, "jumpTo", func(state entity.GameState) (entity.GameState, error) {
		return entity.Rewind(state, step), entity.CheckRewind(state, step)
	})
}

// Listen - registers a listener for stored changes, whichever transport made them.
func (that *gameService) Listen(listener UpdateListener) {
	that.listenersMutex.Lock()
	defer that.listenersMutex.Unlock()

	that.listeners = append(that.listeners, listener)
}

// apply - loads the session, runs a pure engine command and stores the new state.
// Commands on one game run one at a time, so a load is never overwritten by a stale store.
// Ignored commands are not stored and come back with a notice.
func (that *gameService) apply(
	ctx context.Context,
	id, method string,
	command func(entity.GameState) (entity.GameState, error),
) (*Result, error) {
	log := that.logger.With("method", method, "gameID", id)

	unlock := that.locks.lock(id)
	defer unlock()

	session, err := that.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}

	next, reason := command(session.State)
	if reason != nil {
		log.Debug("command ignored", "reason", reason)

		return &Result{Session: session, Notice: reason.Error()}, nil
	}

	session.State = next
	session.UpdatedAt = that.now()

	if err = that.gameRepo.CreateOrUpdate(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	log.Info("game updated", "step", next.Step, "status", entity.Status(next).Status)

	// still under the game lock, so listeners see updates in store order
	that.notify(ctx, session)

	return &Result{Session: session}, nil
}

func (that *gameService) notify(ctx context.Context, session *entity.Session) {
	that.listenersMutex.RLock()
	defer that.listenersMutex.RUnlock()

	for _, listener := range that.listeners {
		listener(ctx, session)
	}
}
