package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/outpost-games/relay/internal/config"
)

// SessionHandler processes one connected websocket session: the read
// loop for a single client, fed into the dispatcher.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor serves the websocket endpoint and dispatches each upgraded
// connection to a SessionHandler on its own goroutine.
type Acceptor struct {
	cfg      config.ServerConfig
	handler  SessionHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a websocket acceptor with the given configuration.
//
// Precondition: cfg must carry a valid port; handler and logger must be
// non-nil.
func NewAcceptor(cfg config.ServerConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The relay carries no credentials; origin policy belongs to
			// the deployment's proxy layer.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// ListenAndServe starts the HTTP listener and serves upgrades on /ws
// until Stop is called. This method blocks.
//
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.serveWS)
	srv := &http.Server{Handler: mux}

	a.mu.Lock()
	a.listener = listener
	a.srv = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket endpoint: %w", err)
	}
	return nil
}

// serveWS upgrades one HTTP request and runs its session.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	a.wg.Add(1)
	go a.runSession(raw)
}

func (a *Acceptor) runSession(raw *websocket.Conn) {
	defer a.wg.Done()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	a.logger.Info("client connected", zap.String("remote_addr", addr))

	conn := NewConn(raw, a.cfg.WriteTimeout)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
			_ = conn.Close()
		case <-ctx.Done():
		}
	}()

	if err := a.handler.HandleSession(ctx, conn); err != nil {
		a.logger.Debug("session ended",
			zap.String("remote_addr", addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Info("session ended cleanly",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop closes the listener and waits for active sessions to drain.
//
// Postcondition: All connections are closed and session goroutines have
// exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	close(a.quit)
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
		defer cancel()
		_ = a.srv.Shutdown(ctx)
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}
