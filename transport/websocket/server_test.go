package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/repository"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	url         string
	gameService service.GameService
	cancel      context.CancelFunc
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gameService := service.NewGameService(logger, repository.NewMemoryRepository())

	wsServer := New(logger, gameService)
	gameService.Listen(wsServer.GameUpdated)

	srv := httptest.NewServer(wsServer.Handler(ctx))
	t.Cleanup(srv.Close)

	return &testServer{
		url:         "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		gameService: gameService,
		cancel:      cancel,
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func send(t *testing.T, conn *websocket.Conn, action string, payload Payload) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Message{Action: action, Payload: body}))
}

func receive(t *testing.T, conn *websocket.Conn) (string, ResponsePayload) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message Message
	require.NoError(t, conn.ReadJSON(&message))

	var payload ResponsePayload
	require.NoError(t, json.Unmarshal(message.Payload, &payload))

	return message.Action, payload
}

func intPtr(v int) *int {
	return &v
}

func TestServer_GameFlow(t *testing.T) {
	srv := newTestServer(t)
	first, second := dial(t, srv.url), dial(t, srv.url)

	// Given: the first client creates a game
	send(t, first, actionNewGame, Payload{})
	action, resp := receive(t, first)
	require.Equal(t, actionNewGame, action)
	require.NotNil(t, resp.Game)
	gameID := resp.Game.ID

	// Given: the second client loads and watches it
	send(t, second, actionGetGame, Payload{GameID: gameID})
	action, resp = receive(t, second)
	require.Equal(t, actionGetGame, action)
	assert.Equal(t, gameID, resp.Game.ID)

	// When: the first client plays the centre
	send(t, first, actionTurn, Payload{Cell: intPtr(4)})

	// Then: the sender gets the new state
	action, resp = receive(t, first)
	require.Equal(t, actionTurn, action)
	assert.Equal(t, entity.PlayerX, resp.Game.Board[4])
	assert.Empty(t, resp.Notice)
	assert.Empty(t, resp.Game.Notice)

	// Then: the other watcher receives an update
	action, resp = receive(t, second)
	require.Equal(t, actionUpdate, action)
	assert.Equal(t, entity.PlayerO, resp.Game.Next)

	// When: the second client clicks the same cell
	send(t, second, actionTurn, Payload{Cell: intPtr(4)})

	// Then: the move is ignored with a top-level notice
	action, resp = receive(t, second)
	require.Equal(t, actionTurn, action)
	assert.Contains(t, resp.Notice, "cell is already occupied")
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1, resp.Game.Step)

	// When: the second client jumps back to the start
	send(t, second, actionJump, Payload{Step: intPtr(0)})

	// Then: both clients see the empty board
	action, resp = receive(t, second)
	require.Equal(t, actionJump, action)
	assert.Equal(t, entity.Board{}, resp.Game.Board)

	action, resp = receive(t, first)
	require.Equal(t, actionUpdate, action)
	assert.Equal(t, 0, resp.Game.Step)
	assert.Equal(t, "Go to game start", resp.Game.Moves[0].Label)
}

func TestServer_ReplyShape(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv.url)

	// Given: a new game
	send(t, conn, actionNewGame, Payload{})
	_, _ = receive(t, conn)

	// When: an out-of-range jump is sent
	send(t, conn, actionJump, Payload{Step: intPtr(7)})

	// Then: the raw reply carries game and notice at the top of the payload
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var message struct {
		Action  string                     `json:"action"`
		Payload map[string]json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&message))

	assert.Equal(t, "game:jump", message.Action)
	assert.Contains(t, message.Payload, "game")
	assert.Contains(t, message.Payload, "notice")
	assert.NotContains(t, message.Payload, "error")
}

func TestServer_PushesChangesFromOtherTransports(t *testing.T) {
	srv := newTestServer(t)
	watcher := dial(t, srv.url)

	// Given: a socket watching a game
	send(t, watcher, actionNewGame, Payload{})
	_, resp := receive(t, watcher)
	gameID := resp.Game.ID

	// When: a move is made through the service, as the REST API does
	_, err := srv.gameService.MakeMove(context.Background(), gameID, 8)
	require.NoError(t, err)

	// Then: the socket receives the update
	action, resp := receive(t, watcher)
	require.Equal(t, actionUpdate, action)
	assert.Equal(t, entity.PlayerX, resp.Game.Board[8])
}

func TestServer_ClosesConnectionsOnShutdown(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv.url)

	// Given: a live connection
	send(t, conn, actionNewGame, Payload{})
	_, _ = receive(t, conn)

	// When: the server context is canceled
	srv.cancel()

	// Then: the client gets a going-away close instead of hanging
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestServer_Errors(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv.url)

	t.Run("Unknown action", func(t *testing.T) {
		send(t, conn, "game:fly", Payload{})

		action, resp := receive(t, conn)
		assert.Equal(t, "game:fly", action)
		assert.Equal(t, "unknown action", resp.Error)
	})

	t.Run("Turn before joining a game", func(t *testing.T) {
		send(t, conn, actionTurn, Payload{Cell: intPtr(0)})

		_, resp := receive(t, conn)
		assert.Equal(t, errNoGame.Error(), resp.Error)
	})

	t.Run("Turn without a cell", func(t *testing.T) {
		send(t, conn, actionTurn, Payload{})

		_, resp := receive(t, conn)
		assert.Equal(t, "cell is required", resp.Error)
	})

	t.Run("Get an unknown game", func(t *testing.T) {
		send(t, conn, actionGetGame, Payload{GameID: "missing"})

		_, resp := receive(t, conn)
		assert.Equal(t, "game not found", resp.Error)
		assert.Nil(t, resp.Game)
	})
}
