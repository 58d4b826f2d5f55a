package index

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the period between scheduled passes.
const DefaultInterval = 5 * time.Minute

// Scheduler invokes a gated sync entry point at start-up, on a fixed
// interval and on demand. The entry point decides whether a pass actually
// starts; overlapping requests coalesce there.
type Scheduler struct {
	interval time.Duration
	run      func(ctx context.Context) bool
	trigger  chan struct{}
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler around run, which must be non-blocking
// (typically the async runner's Start) and report whether a pass started.
func NewScheduler(interval time.Duration, run func(ctx context.Context) bool, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		run:      run,
		trigger:  make(chan struct{}, 1),
		logger:   logger,
	}
}

// Start launches the scheduling loop and fires the start-up pass.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, "interval")
		case <-s.trigger:
			s.fire(ctx, "trigger")
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, reason string) {
	started := s.run(ctx)
	s.logger.Debug("sync_scheduled",
		slog.String("reason", reason),
		slog.Bool("started", started))
}

// Trigger requests a pass as soon as possible. Requests made while one is
// already pending collapse into one.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the loop and waits for it to exit. Running passes are not
// cancelled here; they belong to the runner.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
