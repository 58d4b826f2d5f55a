package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights a new ETA estimate against the previous one.
const etaSmoothing = 0.3

// rateWindow is the minimum interval between rate samples.
const rateWindow = 500 * time.Millisecond

// ProgressTracker derives ETA and throughput from fraction updates.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.Mutex
	fraction    float64
	currentFile string
	files       int
	start       time.Time
	lastETA     time.Duration

	lastSample   time.Time
	lastFiles    int
	rate         float64
	history      []float64
	historyLimit int

	errors   []ErrorEvent
	warnings []ErrorEvent
}

// ProgressStats is a snapshot of the tracker.
type ProgressStats struct {
	Fraction    float64
	CurrentFile string
	// Files counts distinct files observed, a lower bound when updates are
	// sampled.
	Files      int
	Elapsed    time.Duration
	ETA        time.Duration
	Rate       float64
	ErrorCount int
	WarnCount  int
}

// NewProgressTracker creates a tracker whose clock starts now.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{start: now, lastSample: now, historyLimit: 60}
}

// Update records an observation. Fractions never move backwards.
func (p *ProgressTracker) Update(fraction float64, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fraction > 1 {
		fraction = 1
	}
	if fraction > p.fraction {
		p.fraction = fraction
	}
	if file != "" && file != p.currentFile {
		p.currentFile = file
		p.files++
	}

	now := time.Now()
	if elapsed := now.Sub(p.lastSample); elapsed >= rateWindow {
		p.rate = float64(p.files-p.lastFiles) / elapsed.Seconds()
		p.lastFiles = p.files
		p.lastSample = now
		p.history = append(p.history, p.rate)
		if len(p.history) > p.historyLimit {
			p.history = p.history[len(p.history)-p.historyLimit:]
		}
	}
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProgressStats{
		Fraction:    p.fraction,
		CurrentFile: p.currentFile,
		Files:       p.files,
		Elapsed:     time.Since(p.start),
		ETA:         p.etaLocked(),
		Rate:        p.rate,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
	}
}

// History returns the recorded throughput samples, oldest first.
func (p *ProgressTracker) History() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.history...)
}

// etaLocked extrapolates the remaining time from elapsed time and fraction,
// smoothed so batch-to-batch variance does not make it jump.
func (p *ProgressTracker) etaLocked() time.Duration {
	if p.fraction <= 0 || p.fraction >= 1 {
		return 0
	}
	elapsed := time.Since(p.start)
	raw := time.Duration(float64(elapsed)/p.fraction) - elapsed
	if raw < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = raw
		return raw
	}
	p.lastETA = time.Duration(etaSmoothing*float64(raw) + (1-etaSmoothing)*float64(p.lastETA))
	return p.lastETA
}

// sparkChars are the eight bar heights used by Sparkline.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline renders the last width samples scaled to their maximum.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	max := 0.0
	for _, v := range samples {
		if v > max {
			max = v
		}
	}

	out := make([]rune, width)
	pad := width - len(samples)
	for i := range out {
		if i < pad {
			out[i] = ' '
			continue
		}
		v := samples[i-pad]
		level := 0
		if max > 0 {
			level = int(v / max * float64(len(sparkChars)-1))
		}
		if level < 0 {
			level = 0
		}
		out[i] = sparkChars[level]
	}
	return string(out)
}
