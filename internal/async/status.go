// Package async runs sync passes in the background and tracks their progress
// for status reporting.
package async

import (
	"sync"
	"time"

	"github.com/Aman-CERP/memesearch/internal/index"
)

// SyncStatus represents the overall sync state.
type SyncStatus string

const (
	// StatusIdle indicates no pass has run yet.
	StatusIdle SyncStatus = "idle"
	// StatusSyncing indicates a pass is in progress.
	StatusSyncing SyncStatus = "syncing"
	// StatusReady indicates the last pass completed.
	StatusReady SyncStatus = "ready"
	// StatusError indicates the last pass failed.
	StatusError SyncStatus = "error"
)

// ProgressSnapshot is an immutable copy of the sync progress.
type ProgressSnapshot struct {
	Status         string        `json:"status"`
	CurrentFile    string        `json:"current_file,omitempty"`
	Fraction       float64       `json:"fraction"`
	ProgressPct    float64       `json:"progress_pct"`
	ElapsedSeconds int           `json:"elapsed_seconds"`
	Passes         int           `json:"passes"`
	LastResult     *index.Result `json:"last_result,omitempty"`
	LastFinished   time.Time     `json:"last_finished,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of sync progress.
type Progress struct {
	mu sync.RWMutex

	status       SyncStatus
	currentFile  string
	fraction     float64
	startTime    time.Time
	passes       int
	lastResult   *index.Result
	lastFinished time.Time
	errorMessage string
}

// NewProgress creates an idle progress tracker.
func NewProgress() *Progress {
	return &Progress{status: StatusIdle}
}

// Begin marks the start of a pass.
func (p *Progress) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusSyncing
	p.currentFile = ""
	p.fraction = 0
	p.startTime = time.Now()
	p.errorMessage = ""
}

// Update records the file being processed and the pass fraction.
// It has the signature of index.ProgressFunc.
func (p *Progress) Update(currentFile string, fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentFile = currentFile
	if fraction > p.fraction {
		p.fraction = fraction
	}
}

// Finish records the outcome of a pass.
func (p *Progress) Finish(result *index.Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.passes++
	p.lastResult = result
	p.lastFinished = time.Now()
	p.currentFile = ""
	if err != nil {
		p.status = StatusError
		p.errorMessage = err.Error()
		return
	}
	p.status = StatusReady
	p.fraction = 1
}

// IsSyncing returns true while a pass is in progress.
func (p *Progress) IsSyncing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status == StatusSyncing
}

// Snapshot returns an immutable copy of the current state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var elapsed int
	if p.status == StatusSyncing {
		elapsed = int(time.Since(p.startTime).Seconds())
	}

	return ProgressSnapshot{
		Status:         string(p.status),
		CurrentFile:    p.currentFile,
		Fraction:       p.fraction,
		ProgressPct:    p.fraction * 100.0,
		ElapsedSeconds: elapsed,
		Passes:         p.passes,
		LastResult:     p.lastResult,
		LastFinished:   p.lastFinished,
		ErrorMessage:   p.errorMessage,
	}
}
