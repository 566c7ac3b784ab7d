package store

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ArchiveFunc persists a session's transcript before eviction. Errors
// leave the session in place for the next sweep.
type ArchiveFunc func(ctx context.Context, sess *Session) error

// Sweeper archives and evicts sessions idle past a timeout, on a cron
// schedule. This covers callers that never send an explicit end-of-chat.
type Sweeper struct {
	store       *Store
	idleTimeout time.Duration
	schedule    string
	archive     ArchiveFunc
	cron        *cron.Cron
	logger      zerolog.Logger
}

// NewSweeper creates an idle-session sweeper. A zero idleTimeout disables
// sweeping entirely.
func NewSweeper(s *Store, idleTimeout time.Duration, schedule string, archive ArchiveFunc, logger zerolog.Logger) *Sweeper {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	return &Sweeper{
		store:       s,
		idleTimeout: idleTimeout,
		schedule:    schedule,
		archive:     archive,
		cron:        cron.New(),
		logger:      logger,
	}
}

// Start registers the sweep job and starts the scheduler
func (sw *Sweeper) Start() error {
	if sw.idleTimeout <= 0 {
		sw.logger.Info().Msg("Idle sweep disabled")
		return nil
	}

	if _, err := sw.cron.AddFunc(sw.schedule, sw.Sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", sw.schedule, err)
	}

	sw.cron.Start()
	sw.logger.Info().
		Str("schedule", sw.schedule).
		Dur("idle_timeout", sw.idleTimeout).
		Msg("Idle sweeper started")

	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish
func (sw *Sweeper) Stop() {
	ctx := sw.cron.Stop()
	<-ctx.Done()
	sw.logger.Info().Msg("Idle sweeper stopped")
}

// Sweep archives and evicts every session idle past the timeout. It is
// exported so tests and shutdown paths can trigger a pass directly.
func (sw *Sweeper) Sweep() {
	cutoff := time.Now().Add(-sw.idleTimeout)
	swept := 0

	for _, id := range sw.store.List() {
		lock := sw.store.Acquire(id)
		lock.Lock()

		sess, ok := sw.store.Peek(id)
		if !ok || sess.LastActive.After(cutoff) {
			lock.Unlock()
			continue
		}

		if sw.archive != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := sw.archive(ctx, sess)
			cancel()
			if err != nil {
				sw.logger.Error().
					Err(err).
					Str("session_id", id).
					Msg("Failed to archive idle session, keeping it")
				lock.Unlock()
				continue
			}
		}

		sw.store.Remove(id)
		lock.Unlock()
		swept++
	}

	if swept > 0 {
		sw.logger.Info().Int("sessions", swept).Msg("Swept idle sessions")
	}
}
