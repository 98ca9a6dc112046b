package classes

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"liveclass/internal/metrics"
)

// Sweepable is anything that can run one lifecycle sweep.
type Sweepable interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// Sweeper runs the lifecycle sweep once at start and then on a fixed interval until stopped.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	log      *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(target Sweepable, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		log:      log.Named("sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. ctx is handed to every tick; cancelling it aborts store
// calls, while Stop lets the running tick finish.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Stop stops ticking and blocks until the in-flight tick, if any, returns.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	// never started: nothing to wait for, and a later Start becomes a no-op
	s.startOnce.Do(func() { close(s.done) })
	<-s.done
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)
	s.log.Info("sweeper started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-s.stop:
			s.log.Info("sweeper stopped")
			return
		case <-ctx.Done():
			s.log.Info("sweeper context done")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	start := time.Now()
	if _, err := s.target.Sweep(ctx); err != nil {
		metrics.SweepFailures.Inc()
		s.log.Error("sweep failed", zap.Error(err), zap.Duration("took", time.Since(start)))
		return
	}
	s.log.Debug("sweep done", zap.Duration("took", time.Since(start)))
}
