package app

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/memesearch/internal/index"
	"github.com/Aman-CERP/memesearch/internal/scanner"
	"github.com/Aman-CERP/memesearch/internal/watcher"
)

// maxDirectBatch is the largest watcher batch applied file by file; larger
// batches, and any batch touching a directory or non-image path, trigger a
// full pass instead.
const maxDirectBatch = 32

// Start launches the background services: the periodic scheduler (which
// fires a start-up pass) and, when enabled, the filesystem watcher. They run
// until ctx is cancelled or Close is called.
func (a *App) Start(ctx context.Context) error {
	a.bgMu.Lock()
	defer a.bgMu.Unlock()
	if a.bgCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	a.bgCancel = cancel

	a.scheduler = index.NewScheduler(a.cfg.Sync.Interval, func(context.Context) bool {
		return a.runner.Start()
	}, a.logger)
	a.scheduler.Start(ctx)

	if !a.cfg.Sync.Watch {
		return nil
	}

	w, err := watcher.New(watcher.Options{
		DebounceWindow: a.cfg.Sync.Debounce,
		Extensions:     a.cfg.Paths.Extensions,
	})
	if err != nil {
		// The scheduler still keeps the index fresh.
		a.logger.Warn("watcher_unavailable", slog.String("error", err.Error()))
		return nil
	}
	roots, err := a.store.Roots(ctx)
	if err != nil {
		_ = w.Stop()
		a.logger.Warn("watcher_unavailable", slog.String("error", err.Error()))
		return nil
	}
	if err := w.Start(ctx, roots); err != nil {
		_ = w.Stop()
		return err
	}
	a.watch = w

	a.bgDone.Add(1)
	go func() {
		defer a.bgDone.Done()
		a.consumeEvents(ctx, w)
	}()
	return nil
}

func (a *App) consumeEvents(ctx context.Context, w *watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			a.handleBatch(ctx, batch)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			a.logger.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

// handleBatch applies small batches of file changes directly under the sync
// gate. Anything else is left to a full pass. A root change made while the
// batch held the gate is applied once it is released.
func (a *App) handleBatch(ctx context.Context, batch []watcher.FileEvent) {
	if len(batch) == 0 {
		return
	}
	if len(batch) > maxDirectBatch || needsFullPass(batch, a.eligibility) || !a.gate.TryBegin() {
		a.requestPass()
		return
	}
	a.applyBatch(ctx, batch)
	a.gate.End()
	a.reconcileIfDirty()
}

func (a *App) applyBatch(ctx context.Context, batch []watcher.FileEvent) {
	for _, ev := range batch {
		if ctx.Err() != nil {
			return
		}
		var err error
		if ev.Operation.Removes() {
			err = a.syncer.RemoveFile(ctx, ev.Path)
		} else {
			err = a.syncer.ImportFile(ctx, ev.Path)
		}
		if err != nil {
			a.logger.Debug("watch_event_failed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()),
				slog.String("error", err.Error()))
		}
	}
	a.logger.Debug("watch_batch_applied", slog.Int("events", len(batch)))
}

// needsFullPass reports whether a batch names a directory, or a path that may
// have been one: the watcher reports extensionless removals.
func needsFullPass(batch []watcher.FileEvent, filter scanner.Filter) bool {
	for _, ev := range batch {
		if ev.IsDir || !filter.HasExtension(ev.Path) {
			return true
		}
	}
	return false
}

func (a *App) requestPass() {
	a.bgMu.Lock()
	s := a.scheduler
	a.bgMu.Unlock()
	if s != nil {
		s.Trigger()
		return
	}
	a.runner.Start()
}

func (a *App) stopBackground() {
	a.bgMu.Lock()
	cancel := a.bgCancel
	s, w := a.scheduler, a.watch
	a.bgCancel, a.scheduler, a.watch = nil, nil, nil
	a.bgMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if s != nil {
		s.Stop()
	}
	if w != nil {
		_ = w.Stop()
	}
	a.bgDone.Wait()
}
