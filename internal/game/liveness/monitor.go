// Package liveness provides the periodic heartbeat prober, the idle-room
// sweep, and the stats logger. Each action operates over snapshots: no
// room or registry lock is held across a network send.
package liveness

import (
	"time"

	"go.uber.org/zap"

	"github.com/outpost-games/relay/internal/game/room"
	"github.com/outpost-games/relay/internal/game/session"
)

// Config holds the monitor intervals.
type Config struct {
	// HeartbeatInterval is the probe cadence. A connection that has not
	// answered the previous probe when the next one fires is terminated.
	HeartbeatInterval time.Duration
	// SweepInterval is the idle-room scan cadence.
	SweepInterval time.Duration
	// IdleThreshold is the staleness bound for sweep eviction.
	IdleThreshold time.Duration
	// StatsInterval is the cadence of the room/session count log line.
	StatsInterval time.Duration
}

// Monitor runs the periodic liveness tasks as one lifecycle service.
type Monitor struct {
	cfg      Config
	sessions *session.Manager
	registry *room.Registry
	logger   *zap.Logger

	quit chan struct{}
	done chan struct{}
}

// NewMonitor creates a monitor over the given session manager and
// registry.
//
// Precondition: all arguments must be non-nil; intervals must be > 0.
func NewMonitor(cfg Config, sessions *session.Manager, registry *room.Registry, logger *zap.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		sessions: sessions,
		registry: registry,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the periodic tasks until Stop is called. It blocks, matching
// the lifecycle Service contract.
func (m *Monitor) Start() error {
	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	sweep := time.NewTicker(m.cfg.SweepInterval)
	stats := time.NewTicker(m.cfg.StatsInterval)
	defer heartbeat.Stop()
	defer sweep.Stop()
	defer stats.Stop()
	defer close(m.done)

	m.logger.Info("liveness monitor started",
		zap.Duration("heartbeat", m.cfg.HeartbeatInterval),
		zap.Duration("sweep", m.cfg.SweepInterval),
		zap.Duration("idle_threshold", m.cfg.IdleThreshold),
	)

	for {
		select {
		case <-heartbeat.C:
			m.probe()
		case <-sweep.C:
			m.sweepIdle()
		case <-stats.C:
			m.logger.Info("relay stats",
				zap.Int("rooms", m.registry.Count()),
				zap.Int("sessions", m.sessions.SessionCount()),
			)
		case <-m.quit:
			return nil
		}
	}
}

// Stop signals the monitor to exit and waits for the loop to drain.
func (m *Monitor) Stop() {
	close(m.quit)
	<-m.done
}

// probe terminates connections that missed the previous probe, then arms
// a fresh probe on the survivors. Termination closes the transport, which
// drives the normal disconnect path in the dispatcher.
func (m *Monitor) probe() {
	for _, sess := range m.sessions.Sessions() {
		conn := sess.Conn()
		if !conn.Alive() {
			m.logger.Info("terminating unresponsive connection",
				zap.String("uid", sess.UID()),
				zap.String("remote_addr", conn.RemoteAddr()),
			)
			_ = conn.Close()
			continue
		}
		conn.SetAlive(false)
		if err := conn.Ping(); err != nil {
			m.logger.Debug("heartbeat probe failed",
				zap.String("uid", sess.UID()),
				zap.Error(err),
			)
			_ = conn.Close()
		}
	}
}

// sweepIdle deletes rooms that are both empty and stale. Rooms with live
// connections are never evicted here regardless of age; emptiness alone
// is handled immediately on disconnect, so the sweep is a safety net for
// rooms created but never joined.
func (m *Monitor) sweepIdle() {
	evicted := 0
	for _, r := range m.registry.All() {
		if !r.Empty() {
			continue
		}
		if time.Since(r.LastActivity()) < m.cfg.IdleThreshold {
			continue
		}
		m.registry.Delete(r.ID())
		evicted++
	}
	if evicted > 0 {
		m.logger.Info("idle sweep evicted rooms", zap.Int("count", evicted))
	}
}
