package ui

import (
	"sync"
	"time"
)

// etaSmoothing weights a fresh ETA estimate against the previous one.
// Per-file embedding time varies a lot, so the raw estimate jumps.
const etaSmoothing = 0.3

// ProgressTracker holds the state shown by the TUI. Safe for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	started     time.Time
	stageStart  time.Time
	lastETA     time.Duration
	failed      []ErrorEvent
	warnings    []ErrorEvent
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0.0-1.0
	ETA         time.Duration
	Rate        float64 // files per second in the current stage
	CurrentFile string
	ErrorCount  int
	WarnCount   int
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageScanning, started: now, stageStart: now}
}

// SetStage moves to stage with total files to go.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
	p.lastETA = 0
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}
}

// AddError records a failure or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.failed = append(p.failed, event)
	}
}

// Elapsed returns the time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.started)
}

// Stats returns a snapshot. It takes the write lock because the ETA
// estimate is smoothed against the previous call.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.failed),
		WarnCount:   len(p.warnings),
		ETA:         p.eta(),
	}
	if p.total > 0 {
		st.Progress = min(float64(p.current)/float64(p.total), 1.0)
	}
	if elapsed := time.Since(p.stageStart).Seconds(); elapsed > 0 {
		st.Rate = float64(p.current) / elapsed
	}
	return st
}

// Errors returns the recorded failures.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ErrorEvent, len(p.failed))
	copy(out, p.failed)
	return out
}

// eta must be called with the lock held.
func (p *ProgressTracker) eta() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	done := float64(p.current) / float64(p.total)
	raw := time.Duration(float64(elapsed)/done) - elapsed
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
