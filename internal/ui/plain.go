package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainStep is the progress granularity, in percent, of plain output.
const plainStep = 10

// PlainRenderer writes one line per progress step (for CI and pipes).
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	lastStep int
	errors   int
	warnings int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastStep: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	step := int(event.Fraction*100) / plainStep * plainStep
	if step <= r.lastStep {
		return
	}
	r.lastStep = step
	if event.CurrentFile != "" {
		_, _ = fmt.Fprintf(r.out, "[SYNC] %3d%% - %s\n", step, event.CurrentFile)
	} else {
		_, _ = fmt.Fprintf(r.out, "[SYNC] %3d%%\n", step)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Sync complete: %d scanned, %d indexed, %d unchanged, %d removed in %s",
		stats.Scanned, stats.Indexed, stats.Skipped, stats.Removed, stats.Duration.Round(100*time.Millisecond))
	if stats.Failed > 0 || stats.OCRFailures > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed, %d OCR failures)", stats.Failed, stats.OCRFailures)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Model: %s (%d dims)\n", stats.Model, stats.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
