package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rocketscienceinc/tictactoe-timetravel/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-timetravel/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoFactory func(t *testing.T) (context.Context, GameRepository)

func repositories() map[string]repoFactory {
	return map[string]repoFactory{
		"memory": func(_ *testing.T) (context.Context, GameRepository) {
			return context.Background(), NewMemoryRepository()
		},
		"redis": func(t *testing.T) (context.Context, GameRepository) {
			ctx, st := suite.New(t)
			return ctx, NewGameRepository(st.Storage, time.Minute)
		},
	}
}

func playedSession(id string, cells ...int) *entity.Session {
	session := entity.NewSession(id, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	for _, cell := range cells {
		session.State = entity.ApplyMove(session.State, cell)
	}

	return session
}

func TestGameRepository_CreateOrUpdate(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx, repo := newRepo(t)

			// Given: a session with two moves
			session := playedSession("123", 4, 0)

			// When: CreateOrUpdate is called twice with a later state
			require.NoError(t, repo.CreateOrUpdate(ctx, session))

			session.State = entity.ApplyMove(session.State, 8)
			require.NoError(t, repo.CreateOrUpdate(ctx, session))

			// Then: the latest state is stored
			stored, err := repo.GetByID(ctx, session.ID)
			require.NoError(t, err)
			assert.Equal(t, 4, stored.State.Len())
			assert.Equal(t, session.State.Current().Board, stored.State.Current().Board)
		})
	}
}

func TestGameRepository_GetByID(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name+"_Success", func(t *testing.T) {
			ctx, repo := newRepo(t)

			// Given: a stored session
			session := playedSession("123", 0, 4, 1)
			require.NoError(t, repo.CreateOrUpdate(ctx, session))

			// When: GetByID is called with the existing ID
			stored, err := repo.GetByID(ctx, session.ID)

			// Then: the history round-trips including changed indexes
			require.NoError(t, err)
			assert.Equal(t, session.ID, stored.ID)
			assert.Equal(t, session.State, stored.State)
			assert.True(t, session.CreatedAt.Equal(stored.CreatedAt))
		})

		t.Run(name+"_NotFound", func(t *testing.T) {
			ctx, repo := newRepo(t)

			// When: GetByID is called with a non-existent ID
			stored, err := repo.GetByID(ctx, "9999999")

			// Then: ErrGameNotFound is returned
			require.ErrorIs(t, err, apperror.ErrGameNotFound)
			assert.Nil(t, stored)
		})
	}
}

func TestGameRepository_DeleteByID(t *testing.T) {
	for name, newRepo := range repositories() {
		t.Run(name+"_Success", func(t *testing.T) {
			ctx, repo := newRepo(t)

			// Given: a stored session
			session := playedSession("123")
			require.NoError(t, repo.CreateOrUpdate(ctx, session))

			// When: DeleteByID is called
			err := repo.DeleteByID(ctx, session.ID)

			// Then: the session is gone
			require.NoError(t, err)

			_, err = repo.GetByID(ctx, session.ID)
			assert.ErrorIs(t, err, apperror.ErrGameNotFound)
		})

		t.Run(name+"_NotFound", func(t *testing.T) {
			ctx, repo := newRepo(t)

			// When: DeleteByID is called with a non-existent ID
			err := repo.DeleteByID(ctx, "9999999")

			// Then: ErrGameNotFound is returned
			assert.ErrorIs(t, err, apperror.ErrGameNotFound)
		})
	}
}

func TestGameRepository_RejectsCorruptState(t *testing.T) {
	ctx, st := suite.New(t)

	repo := NewGameRepository(st.Storage, time.Minute)

	// Given: a stored blob whose step points past the history
	blob := `{"id":"bad","state":{"history":[{"board":["","","","","","","","",""]}],"step":3}}`
	require.NoError(t, st.Storage.Set(ctx, gameKeyPrefix+"bad", blob, time.Minute).Err())

	// When: loading it
	_, err := repo.GetByID(ctx, "bad")

	// Then: validation fails
	assert.ErrorIs(t, err, entity.ErrCorruptHistory)
}

func TestGameRepository_TTL(t *testing.T) {
	ctx, st := suite.New(t)

	repo := NewGameRepository(st.Storage, time.Minute)

	// Given: a stored session
	require.NoError(t, repo.CreateOrUpdate(ctx, playedSession("ttl")))

	// When: reading the key ttl
	ttl, err := st.Storage.TTL(ctx, gameKeyPrefix+"ttl").Result()

	// Then: the configured expiry is applied
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}
