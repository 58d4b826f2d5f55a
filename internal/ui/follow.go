package ui

import (
	"context"
	"errors"
	"time"

	"github.com/Aman-CERP/memesearch/internal/async"
)

// PollFunc returns the current sync progress.
type PollFunc func(ctx context.Context) (async.ProgressSnapshot, error)

// Follow feeds r with snapshots from poll every interval until the pass is
// no longer syncing, then reports completion. It returns the final snapshot;
// a pass that ended in error yields that error.
func Follow(ctx context.Context, r Renderer, poll PollFunc, interval time.Duration) (async.ProgressSnapshot, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if err := r.Start(ctx); err != nil {
		return async.ProgressSnapshot{}, err
	}
	defer func() { _ = r.Stop() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := poll(ctx)
		if err != nil {
			return snap, err
		}
		r.UpdateProgress(ProgressEvent{Fraction: snap.Fraction, CurrentFile: snap.CurrentFile})

		if snap.Status != string(async.StatusSyncing) {
			if snap.Status == string(async.StatusError) {
				return snap, errors.New(snap.ErrorMessage)
			}
			r.Complete(CompletionStatsFrom(snap))
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}

// CompletionStatsFrom extracts the summary of the last pass in snap.
func CompletionStatsFrom(snap async.ProgressSnapshot) CompletionStats {
	r := snap.LastResult
	if r == nil {
		return CompletionStats{}
	}
	return CompletionStats{
		Scanned:     r.Scanned,
		Indexed:     r.Indexed,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Removed:     r.Removed,
		OCRFailures: r.OCRFailures,
		Duration:    r.Duration,
	}
}
