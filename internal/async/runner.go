package async

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/index"
)

// markerName is the file present in the data directory while a pass runs.
const markerName = "sync.lock"

// Gate is the exclusivity gate guarding sync passes.
type Gate interface {
	TryBegin() bool
	End()
	Running() bool
}

// RunFunc performs one sync pass.
type RunFunc func(ctx context.Context, progress index.ProgressFunc) (*index.Result, error)

// Runner starts gated sync passes without blocking the caller.
type Runner struct {
	gate     Gate
	run      RunFunc
	progress *Progress
	dataDir  string

	// OnFinish, when set, is called after every pass.
	OnFinish func(*index.Result, error)

	base   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. dataDir may be empty to skip the interrupted
// pass marker.
func NewRunner(gate Gate, run RunFunc, dataDir string) *Runner {
	base, stop := context.WithCancel(context.Background())
	return &Runner{
		gate:     gate,
		run:      run,
		progress: NewProgress(),
		dataDir:  dataDir,
		base:     base,
		stop:     stop,
	}
}

// Progress returns the progress tracker.
func (r *Runner) Progress() *Progress {
	return r.progress
}

// IsRunning reports whether a pass holds the gate.
func (r *Runner) IsRunning() bool {
	return r.gate.Running()
}

// Start begins a pass in the background. It returns false, and does nothing,
// when a pass is already running or the runner is stopped.
func (r *Runner) Start() bool {
	if r.base.Err() != nil || !r.gate.TryBegin() {
		return false
	}

	ctx := r.beginLocked()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, _ = r.execute(ctx)
	}()
	return true
}

// RunNow runs a pass in the calling goroutine. It fails with
// ERR_505_SYNC_BUSY when another pass holds the gate.
func (r *Runner) RunNow(ctx context.Context) (*index.Result, error) {
	if r.base.Err() != nil {
		return nil, merrors.New(merrors.ErrCodeSyncBusy, "sync runner is stopped", nil)
	}
	if !r.gate.TryBegin() {
		return nil, merrors.New(merrors.ErrCodeSyncBusy, "a sync pass is already running", nil)
	}

	passCtx := r.beginLocked()
	stop := context.AfterFunc(ctx, r.cancelCurrent)
	defer stop()
	return r.execute(passCtx)
}

// beginLocked prepares a pass context. The caller holds the gate.
func (r *Runner) beginLocked() context.Context {
	ctx, cancel := context.WithCancel(r.base)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	r.progress.Begin()
	return ctx
}

func (r *Runner) cancelCurrent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

// execute runs the pass, releases the gate and then reports to OnFinish, so
// the callback may start another pass.
func (r *Runner) execute(ctx context.Context) (*index.Result, error) {
	result, err := r.pass(ctx)
	if r.OnFinish != nil {
		r.OnFinish(result, err)
	}
	return result, err
}

func (r *Runner) pass(ctx context.Context) (*index.Result, error) {
	defer r.gate.End()
	defer func() {
		r.mu.Lock()
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		r.mu.Unlock()
	}()

	r.writeMarker()
	start := time.Now()
	result, err := r.run(ctx, r.progress.Update)
	if err == nil || ctx.Err() == nil {
		// Cancelled passes leave the marker so the next start knows.
		r.removeMarker()
	}
	r.progress.Finish(result, err)

	if err != nil {
		slog.Warn("sync_pass_failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)))
	}
	return result, err
}

func (r *Runner) writeMarker() {
	if r.dataDir == "" {
		return
	}
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(r.dataDir, markerName), []byte(time.Now().Format(time.RFC3339)), 0o644)
}

func (r *Runner) removeMarker() {
	if r.dataDir == "" {
		return
	}
	_ = os.Remove(filepath.Join(r.dataDir, markerName))
}

// Wait blocks until background passes have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels the running pass, waits for it and refuses new ones.
func (r *Runner) Stop() {
	r.stop()
	r.wg.Wait()
}

// HasInterruptedSync reports whether a previous pass in dataDir ended
// without completing.
func HasInterruptedSync(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, markerName))
	return err == nil
}
