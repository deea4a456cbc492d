package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/slotline/bookingd/internal/engine"
)

// Sweeper periodically cancels waiting requests whose time point has
// already passed, so stale waitlist buckets do not accumulate.
type Sweeper struct {
	engine   *engine.Engine
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewSweeper(eng *engine.Engine, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		engine:   eng,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting waitlist sweeper", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop terminates the loop.
func (s *Sweeper) Stop() {
	s.logger.Info("Stopping waitlist sweeper")
	close(s.stopChan)
}

func (s *Sweeper) run(ctx context.Context) {
	// First sweep right at startup.
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Waitlist sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Waitlist sweeper cancelled")
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	expired, err := s.engine.ExpireStale(ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to expire stale requests", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("Sweep completed", zap.Int("expired", expired))
	}
}
