// Package main provides the relay server binary: matchmaking rooms and
// move relay over a websocket endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/outpost-games/relay/internal/config"
	"github.com/outpost-games/relay/internal/game/liveness"
	"github.com/outpost-games/relay/internal/game/room"
	"github.com/outpost-games/relay/internal/game/session"
	"github.com/outpost-games/relay/internal/observability"
	"github.com/outpost-games/relay/internal/server"
	"github.com/outpost-games/relay/internal/transport/ws"
)

// sessionBridge feeds the websocket read loop into the dispatcher.
type sessionBridge struct {
	mgr *session.Manager
}

// HandleSession registers the connection, pumps inbound messages into the
// dispatcher, and runs the disconnect path when the read loop ends.
func (b *sessionBridge) HandleSession(ctx context.Context, conn *ws.Conn) error {
	sess := b.mgr.Register(conn)
	defer b.mgr.Disconnect(sess)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.mgr.Dispatch(sess, data)
	}
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("addr", cfg.Server.Addr()),
	)

	registry := room.NewRegistry()
	mgr := session.NewManager(registry, cfg.Game.EndGrace, logger)
	monitor := liveness.NewMonitor(liveness.Config{
		HeartbeatInterval: cfg.Game.HeartbeatInterval,
		SweepInterval:     cfg.Game.IdleSweepInterval,
		IdleThreshold:     cfg.Game.IdleThreshold,
		StatsInterval:     cfg.Game.StatsInterval,
	}, mgr, registry, logger)
	acceptor := ws.NewAcceptor(cfg.Server, &sessionBridge{mgr: mgr}, logger)

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	lifecycle.Add("liveness", monitor)
	// Registered last so it stops first: open sessions receive the close
	// notification before the timers and the listener tear down.
	sessionsDone := make(chan struct{})
	lifecycle.Add("sessions", &server.FuncService{
		StartFn: func() error {
			<-sessionsDone
			return nil
		},
		StopFn: func() {
			mgr.Shutdown("server_shutdown")
			close(sessionsDone)
		},
	})

	logger.Info("relay server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
