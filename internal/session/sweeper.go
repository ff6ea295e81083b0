package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"billpoint/client/internal/store"
)

// MinSweepInterval is the floor for the sweeper schedule. The OS task this
// models never fires more often than every 15 minutes.
const MinSweepInterval = 15 * time.Minute

// Sweeper is the coarse safety net behind the foreground idle check: on
// every tick it unconditionally clears the persisted session keys. It does
// not measure elapsed time itself; the schedule is the policy.
type Sweeper struct {
	plain    store.Plain
	secure   store.Secure
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper returns a Sweeper. Intervals below MinSweepInterval are clamped.
func NewSweeper(plain store.Plain, secure store.Secure, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval < MinSweepInterval {
		interval = MinSweepInterval
	}
	return &Sweeper{plain: plain, secure: secure, interval: interval, log: log}
}

// Interval returns the effective (clamped) interval.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("sweeper running", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce clears all persisted session keys.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if err := ClearPersisted(ctx, s.plain, s.secure); err != nil {
		s.log.Warn("sweep", zap.Error(err))
		return
	}
	s.log.Info("persisted credentials cleared")
}
