package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/entity"
	"github.com/rocketscienceinc/tictactoe-timetravel/internal/service"
)

const (
	writeWait       = 10 * time.Second
	maxMessageSize  = 1024
	shutdownTimeout = 5 * time.Second
)

type gameService interface {
	NewGame(ctx context.Context) (*entity.Session, error)
	GetGame(ctx context.Context, id string) (*entity.Session, error)

	MakeMove(ctx context.Context, id string, cell int) (*service.Result, error)
	JumpTo(ctx context.Context, id string, step int) (*service.Result, error)
}

type handlerFunc func(ctx context.Context, conn *client, message *Message) error

type Server struct {
	logger      *slog.Logger
	gameService gameService
	upgrader    websocket.Upgrader

	handlers map[string]handlerFunc

	// live connections, closed on shutdown
	connections      map[*client]struct{}
	connectionsMutex sync.Mutex

	// clients watching each game id
	subscribers      map[string]map[*client]struct{}
	subscribersMutex sync.RWMutex
}

// client is one websocket connection. gorilla allows a single concurrent writer.
type client struct {
	conn       *websocket.Conn
	writeMutex sync.Mutex
	gameID     string
}

type senderKey struct{}

// withSender - marks ctx as coming from c, so c is not sent its own update.
func withSender(ctx context.Context, c *client) context.Context {
	return context.WithValue(ctx, senderKey{}, c)
}

func senderFrom(ctx context.Context) *client {
	c, _ := ctx.Value(senderKey{}).(*client)
	return c
}

func New(logger *slog.Logger, gameService gameService) *Server {
	server := &Server{
		logger:      logger.With("component", "websocket"),
		gameService: gameService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxMessageSize,
			WriteBufferSize: maxMessageSize,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		connections: make(map[*client]struct{}),
		subscribers: make(map[string]map[*client]struct{}),
	}

	server.handlers = map[string]handlerFunc{
		actionNewGame: server.handleNewGame,
		actionGetGame: server.handleGetGame,
		actionTurn:    server.handleGameTurn,
		actionJump:    server.handleJump,
	}

	return server
}

// Handler - serves /ws. Open connections are closed once ctx is canceled.
func (that *Server) Handler(ctx context.Context) http.Handler {
	go func() {
		<-ctx.Done()
		that.closeConnections()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server and stops it when ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(ctx),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// GameUpdated - pushes a stored change to every watcher of the game except the client that made it.
// It is registered as a service listener, so REST changes reach sockets too.
func (that *Server) GameUpdated(ctx context.Context, session *entity.Session) {
	that.broadcast(senderFrom(ctx), session.ID, actionUpdate, ResponsePayload{Game: service.NewView(session)})
}

func (that *Server) upgradeToWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := &client{conn: conn}

	if !that.track(ctx, c) {
		_ = conn.Close()
		return
	}

	defer func() {
		that.unsubscribe(c)
		that.untrack(c)
		_ = conn.Close()
	}()

	log.Info("WebSocket connection established", "remote", r.RemoteAddr)

	if err = that.handleMessages(ctx, c); err != nil {
		log.Error("error handling messages", "error", err)
	}
}

// handleMessages - processes messages from the client until it disconnects or the server stops.
func (that *Server) handleMessages(ctx context.Context, c *client) error {
	log := that.logger.With("method", "handleMessages")

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("failed to read message: %w", err)
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)

			if err := that.sendError(c, message.Action, "unknown action"); err != nil {
				return err
			}

			continue
		}

		if err := handler(ctx, c, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// track - registers a connection; false when the server is already stopping.
func (that *Server) track(ctx context.Context, c *client) bool {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	if ctx.Err() != nil {
		return false
	}

	that.connections[c] = struct{}{}

	return true
}

func (that *Server) untrack(c *client) {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	delete(that.connections, c)
}

// closeConnections - sends a going-away close frame and closes every live socket,
// which unblocks their read loops.
func (that *Server) closeConnections() {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")

	for c := range that.connections {
		c.writeMutex.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))
		c.writeMutex.Unlock()

		_ = c.conn.Close()
	}

	that.logger.Info("closed websocket connections", "count", len(that.connections))
}

// subscribe - moves the client to the given game.
func (that *Server) subscribe(c *client, gameID string) {
	that.subscribersMutex.Lock()
	defer that.subscribersMutex.Unlock()

	that.removeLocked(c)

	if that.subscribers[gameID] == nil {
		that.subscribers[gameID] = make(map[*client]struct{})
	}

	that.subscribers[gameID][c] = struct{}{}
	c.gameID = gameID
}

func (that *Server) unsubscribe(c *client) {
	that.subscribersMutex.Lock()
	defer that.subscribersMutex.Unlock()

	that.removeLocked(c)
}

func (that *Server) removeLocked(c *client) {
	if c.gameID == "" {
		return
	}

	if clients, ok := that.subscribers[c.gameID]; ok {
		delete(clients, c)

		if len(clients) == 0 {
			delete(that.subscribers, c.gameID)
		}
	}

	c.gameID = ""
}

// broadcast - sends the message to every client of the game except the sender.
func (that *Server) broadcast(sender *client, gameID, action string, payload ResponsePayload) {
	log := that.logger.With("method", "broadcast", "gameID", gameID)

	that.subscribersMutex.RLock()
	receivers := make([]*client, 0, len(that.subscribers[gameID]))
	for c := range that.subscribers[gameID] {
		if c != sender {
			receivers = append(receivers, c)
		}
	}
	that.subscribersMutex.RUnlock()

	for _, c := range receivers {
		if err := that.sendMessage(c, action, payload); err != nil {
			log.Warn("failed to notify client", "error", err)
		}
	}
}
