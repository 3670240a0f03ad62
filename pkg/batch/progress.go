// Package batch triages directories of reported .eml files with a bounded
// worker pool.
package batch

import (
	"sync"
	"time"

	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

// Progress statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Progress tracks a running batch job. It is safe for concurrent use.
type Progress struct {
	mu sync.RWMutex

	TotalFiles     int
	ProcessedCount int
	AnalyzedCount  int
	SkippedCount   int
	FailedCount    int
	LevelCounts    map[threat.Level]int

	CurrentFile string
	Status      string

	StartedAt time.Time
	UpdatedAt time.Time

	onUpdate func(ProgressSnapshot)
}

// NewProgress creates a progress tracker for totalFiles files.
func NewProgress(totalFiles int) *Progress {
	now := time.Now()
	return &Progress{
		TotalFiles:  totalFiles,
		LevelCounts: map[threat.Level]int{},
		Status:      StatusPending,
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// SetOnUpdate registers fn to receive a snapshot after every change. fn runs
// on the goroutine that made the change, outside the lock, and may be called
// concurrently.
func (p *Progress) SetOnUpdate(fn func(ProgressSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Start marks the job as running.
func (p *Progress) Start() {
	p.update(func() {
		p.Status = StatusRunning
		p.StartedAt = time.Now()
	})
}

// SetCurrentFile records the file a worker just picked up.
func (p *Progress) SetCurrentFile(path string) {
	p.update(func() { p.CurrentFile = path })
}

// RecordAnalyzed counts a triaged file at the given level.
func (p *Progress) RecordAnalyzed(level threat.Level) {
	p.update(func() {
		p.AnalyzedCount++
		p.ProcessedCount++
		p.LevelCounts[level]++
	})
}

// RecordSkipped counts a duplicate or cancelled file.
func (p *Progress) RecordSkipped() {
	p.update(func() {
		p.SkippedCount++
		p.ProcessedCount++
	})
}

// RecordFailed counts a file that could not be analyzed.
func (p *Progress) RecordFailed() {
	p.update(func() {
		p.FailedCount++
		p.ProcessedCount++
	})
}

// Complete marks the job as finished.
func (p *Progress) Complete(success bool) {
	p.update(func() {
		if success {
			p.Status = StatusCompleted
		} else {
			p.Status = StatusFailed
		}
	})
}

// Cancel marks the job as cancelled.
func (p *Progress) Cancel() {
	p.update(func() { p.Status = StatusCancelled })
}

// Snapshot returns a copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Progress) update(fn func()) {
	p.mu.Lock()
	fn()
	p.UpdatedAt = time.Now()
	cb := p.onUpdate
	var snap ProgressSnapshot
	if cb != nil {
		snap = p.snapshotLocked()
	}
	p.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (p *Progress) snapshotLocked() ProgressSnapshot {
	elapsed := time.Since(p.StartedAt).Seconds()
	var estimatedRemaining *float64
	if p.ProcessedCount > 0 {
		remaining := p.TotalFiles - p.ProcessedCount
		est := elapsed / float64(p.ProcessedCount) * float64(remaining)
		estimatedRemaining = &est
	}

	return ProgressSnapshot{
		TotalFiles:                p.TotalFiles,
		ProcessedCount:            p.ProcessedCount,
		AnalyzedCount:             p.AnalyzedCount,
		SkippedCount:              p.SkippedCount,
		FailedCount:               p.FailedCount,
		HighCount:                 p.LevelCounts[threat.LevelHigh],
		MediumCount:               p.LevelCounts[threat.LevelMedium],
		LowCount:                  p.LevelCounts[threat.LevelLow],
		CurrentFile:               p.CurrentFile,
		Status:                    p.Status,
		StartedAt:                 p.StartedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: estimatedRemaining,
	}
}

// ProgressSnapshot is an immutable view of a Progress.
type ProgressSnapshot struct {
	TotalFiles                int
	ProcessedCount            int
	AnalyzedCount             int
	SkippedCount              int
	FailedCount               int
	HighCount                 int
	MediumCount               int
	LowCount                  int
	CurrentFile               string
	Status                    string
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

// PercentComplete returns the percentage of files processed.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.TotalFiles == 0 {
		return 0
	}
	return float64(s.ProcessedCount) / float64(s.TotalFiles) * 100
}

// IsComplete reports whether every file has been processed.
func (s ProgressSnapshot) IsComplete() bool {
	return s.ProcessedCount >= s.TotalFiles
}

// IsSuccess reports whether the job completed without failures.
func (s ProgressSnapshot) IsSuccess() bool {
	return s.Status == StatusCompleted && s.FailedCount == 0
}
