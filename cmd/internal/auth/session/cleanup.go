//go:generate go run go.uber.org/mock/mockgen -source=cleanup.go -destination=../../mocks/mock_session_sweeper.go -package=mocks

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"justice/cmd/internal/metrics"
)

// Sweeper performs one cleanup pass. *Service implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Cleaner runs a Sweeper periodically until its context is cancelled.
type Cleaner struct {
	sweeper  Sweeper
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewCleaner(sweeper Sweeper, interval time.Duration, log *slog.Logger, m *metrics.Metrics) *Cleaner {
	if interval <= 0 {
		interval = DefaultConfig().CleanupInterval
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{sweeper: sweeper, interval: interval, log: log, metrics: m}
}

// Run sweeps once immediately and then on every tick. Errors and panics are
// logged and the loop carries on; it returns only when ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	c.log.Info("session.cleanup.start", slog.Duration("interval", c.interval))

	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		c.once(ctx)

		select {
		case <-ctx.Done():
			c.log.Info("session.cleanup.stop")
			return
		case <-t.C:
		}
	}
}

func (c *Cleaner) once(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	n, err := c.safeSweep(ctx)
	if err != nil {
		c.metrics.CleanupFailed()
		c.log.Error("session.cleanup.fail", slog.Any("err", err))
		return
	}
	c.metrics.SessionsSwept(n)
	c.log.Info("session.cleanup.done", slog.Int64("removed", n))
}

func (c *Cleaner) safeSweep(ctx context.Context) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.sweeper.Sweep(ctx)
}
