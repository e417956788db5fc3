// Package sweeper implements the Keep-Alive Sweeper (C6): a background loop
// that removes sessions whose valid_until has elapsed without a keep-alive.
package sweeper

import (
	"context"
	"time"

	"github.com/ppodhajski/RenderingResourceManager/internal/logger"
	"github.com/ppodhajski/RenderingResourceManager/internal/sessionstore"
)

// deleter is the subset of Engine the sweeper needs. Scoped to one method so
// tests can supply a fake without pulling in the whole engine package.
type deleter interface {
	DeleteSession(ctx context.Context, sessionID string) error
}

// Sweeper periodically scans the Session Store for expired rows and deletes
// them through the Session Engine, so teardown always goes through the same
// STOPPING→cancel→kill→row-removal sequence a client-initiated delete does.
type Sweeper struct {
	sessions sessionstore.Store
	engine   deleter
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Sweeper that runs one pass every interval. A non-positive
// interval falls back to 5 seconds. cmd/server passes the configured
// KEEP_ALIVE_POLL_INTERVAL (default 5 seconds), or the cron-derived interval
// when KEEP_ALIVE_POLL_INTERVAL_CRON is set.
func New(sessions sessionstore.Store, eng deleter, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{
		sessions: sessions,
		engine:   eng,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called. Intended to be launched in
// its own goroutine:
//
//	go sweeper.Start()
func (sw *Sweeper) Start() {
	defer close(sw.doneCh)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	logger.Sweeper().Info().Dur("interval", sw.interval).Msg("keep-alive sweeper started")

	for {
		select {
		case <-ticker.C:
			sw.sweep()
		case <-sw.stopCh:
			logger.Sweeper().Info().Msg("keep-alive sweeper stopped")
			return
		}
	}
}

// Stop signals the sweep loop to exit and blocks until it has.
func (sw *Sweeper) Stop() {
	close(sw.stopCh)
	<-sw.doneCh
}

// sweep runs one scan-and-delete pass. Errors on individual sessions are
// logged and do not stop the pass: a single stuck session must not block
// the sweep of every other expired session.
func (sw *Sweeper) sweep() {
	ctx := context.Background()

	expired, err := sw.sessions.ExpiredBefore(ctx, time.Now().UTC())
	if err != nil {
		logger.Sweeper().Warn().Err(err).Msg("failed to list expired sessions")
		return
	}

	for _, session := range expired {
		if session.Status.IsTerminal() {
			continue
		}
		if err := sw.engine.DeleteSession(ctx, session.ID); err != nil {
			logger.Sweeper().Warn().Str("session_id", session.ID).Err(err).Msg("failed to delete expired session")
			continue
		}
		logger.Sweeper().Info().Str("session_id", session.ID).Msg("expired session reaped")
	}
}
