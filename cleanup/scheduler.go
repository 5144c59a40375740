// Package cleanup sweeps expired refresh token records and blacklist entries
// on a timer.
package cleanup

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-manager/token"
	"github.com/jrsteele09/go-session-manager/token/refresh"
)

// Scheduler periodically deletes refresh token records that have been expired
// for longer than the retention grace window, and purges stale blacklist
// entries. Runs never overlap: a tick that fires while the previous run is
// still executing is skipped, not queued.
type Scheduler struct {
	store     refresh.Store
	blacklist token.Blacklist // may be nil
	interval  time.Duration
	retention time.Duration // audit grace kept past expiry
	logger    zerolog.Logger
	nowFunc   func() time.Time

	inFlight atomic.Bool
	done     chan struct{}
}

type SchedulerOption func(*Scheduler)

func WithLogger(logger zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithNowFunc(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.nowFunc = now
	}
}

func NewScheduler(store refresh.Store, blacklist token.Blacklist, interval, retention time.Duration, options ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, errors.New("[NewScheduler] refresh store is required")
	}
	if interval <= 0 {
		return nil, errors.New("[NewScheduler] interval must be positive")
	}

	s := &Scheduler{
		store:     store,
		blacklist: blacklist,
		interval:  interval,
		retention: retention,
		logger:    zerolog.Nop(),
		nowFunc:   time.Now,
		done:      make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Start launches the sweep loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Run(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (s *Scheduler) Wait() {
	<-s.done
}

// Run executes a single sweep. A run already in flight makes this call a
// no-op and returns false. Failures are logged; the next tick retries
// independently.
func (s *Scheduler) Run(ctx context.Context) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("cleanup already running, skipping tick")
		return false
	}
	defer s.inFlight.Store(false)

	cutoff := s.nowFunc().Add(-s.retention)

	deleted, err := s.store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("cleanup: deleting expired refresh tokens failed")
	} else if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("cleanup: removed expired refresh tokens")
	}

	if s.blacklist != nil {
		purged, err := s.blacklist.Purge(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("cleanup: purging blacklist failed")
		} else if purged > 0 {
			s.logger.Info().Int("purged", purged).Msg("cleanup: purged expired blacklist entries")
		}
	}

	return true
}
