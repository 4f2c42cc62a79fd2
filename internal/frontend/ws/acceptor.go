package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/impostor/internal/config"
	"github.com/cory-johannsen/impostor/internal/game/player"
	"github.com/cory-johannsen/impostor/internal/observability"
)

// SessionHandler receives the lifecycle and inbound frames of each connection.
// Calls for one connection are never concurrent with each other.
type SessionHandler interface {
	HandleConnect(conn player.Conn)
	HandleMessage(conn player.Conn, data []byte)
	HandleDisconnect(conn player.Conn)
}

// Acceptor serves WebSocket upgrades on the configured path and dispatches
// each connection to a SessionHandler.
type Acceptor struct {
	host     string
	cfg      config.WebSocketConfig
	handler  SessionHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	conns    map[*Conn]struct{}
}

// NewAcceptor creates a WebSocket acceptor bound to host and cfg.Port.
//
// Precondition: cfg must be valid; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(host string, cfg config.WebSocketConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		host:    host,
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// LAN clients load the UI from a different port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*Conn]struct{}),
	}
}

// Handler returns the HTTP handler serving the upgrade path.
func (a *Acceptor) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc(a.cfg.Path, a.serveWS).Methods(http.MethodGet)
	return router
}

// ListenAndServe accepts connections until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()
	addr := net.JoinHostPort(a.host, strconv.Itoa(a.cfg.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          observability.NewTransportErrorLog(a.logger, "websocket"),
	}

	a.mu.Lock()
	a.listener = listener
	a.server = server
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// serveWS upgrades one request and runs the connection until it ends.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		a.logger.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	conn := NewConn(raw, r.RemoteAddr, a.cfg)
	if !a.track(conn) {
		_ = raw.Close()
		return
	}
	defer a.untrack(conn)

	start := time.Now()
	a.logger.Info("client connected",
		zap.String("conn", conn.ID()),
		zap.String("remote_addr", conn.RemoteAddr()),
	)

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		conn.WritePump(a.logger)
	}()

	a.handler.HandleConnect(conn)
	err = conn.ReadLoop(func(data []byte) {
		a.handler.HandleMessage(conn, data)
	})
	_ = conn.Close()
	<-pumpDone
	a.handler.HandleDisconnect(conn)

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		a.logger.Debug("client disconnected",
			zap.String("conn", conn.ID()),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Info("client disconnected cleanly",
		zap.String("conn", conn.ID()),
		zap.Duration("duration", time.Since(start)),
	)
}

func (a *Acceptor) track(conn *Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil && !a.running {
		return false
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(conn *Conn) {
	a.mu.Lock()
	delete(a.conns, conn)
	a.mu.Unlock()
	a.wg.Done()
}

// Stop closes the listener and every open connection, then waits for all
// connection handlers to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	server := a.server
	for conn := range a.conns {
		_ = conn.Close()
	}
	a.mu.Unlock()

	if server != nil {
		_ = server.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
