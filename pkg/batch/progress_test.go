package batch

import (
	"sync/atomic"
	"testing"

	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

func TestProgress(t *testing.T) {
	p := NewProgress(100)

	if p.TotalFiles != 100 {
		t.Errorf("unexpected total files: %d", p.TotalFiles)
	}
	if p.Status != StatusPending {
		t.Errorf("unexpected status: %s", p.Status)
	}

	p.Start()
	if p.Status != StatusRunning {
		t.Errorf("expected running status, got: %s", p.Status)
	}

	p.SetCurrentFile("/path/to/file.eml")
	if p.CurrentFile != "/path/to/file.eml" {
		t.Errorf("unexpected current file: %s", p.CurrentFile)
	}

	p.RecordAnalyzed(threat.LevelHigh)
	if p.AnalyzedCount != 1 || p.ProcessedCount != 1 || p.LevelCounts[threat.LevelHigh] != 1 {
		t.Errorf("unexpected counts after analyze: analyzed=%d, processed=%d, high=%d",
			p.AnalyzedCount, p.ProcessedCount, p.LevelCounts[threat.LevelHigh])
	}

	p.RecordSkipped()
	if p.SkippedCount != 1 || p.ProcessedCount != 2 {
		t.Errorf("unexpected counts after skip: skipped=%d, processed=%d",
			p.SkippedCount, p.ProcessedCount)
	}

	p.RecordFailed()
	if p.FailedCount != 1 || p.ProcessedCount != 3 {
		t.Errorf("unexpected counts after fail: failed=%d, processed=%d",
			p.FailedCount, p.ProcessedCount)
	}

	p.Complete(true)
	if p.Status != StatusCompleted {
		t.Errorf("expected completed status, got: %s", p.Status)
	}
}

func TestProgressSnapshot(t *testing.T) {
	p := NewProgress(100)
	p.Start()

	for i := 0; i < 30; i++ {
		p.RecordAnalyzed(threat.LevelLow)
	}
	for i := 0; i < 20; i++ {
		p.RecordAnalyzed(threat.LevelMedium)
	}
	for i := 0; i < 10; i++ {
		p.RecordSkipped()
	}
	for i := 0; i < 5; i++ {
		p.RecordFailed()
	}

	snapshot := p.Snapshot()

	if snapshot.ProcessedCount != 65 {
		t.Errorf("unexpected processed: %d", snapshot.ProcessedCount)
	}
	if snapshot.AnalyzedCount != 50 {
		t.Errorf("unexpected analyzed: %d", snapshot.AnalyzedCount)
	}
	if snapshot.LowCount != 30 || snapshot.MediumCount != 20 || snapshot.HighCount != 0 {
		t.Errorf("unexpected level counts: low=%d medium=%d high=%d",
			snapshot.LowCount, snapshot.MediumCount, snapshot.HighCount)
	}
	if pct := snapshot.PercentComplete(); pct != 65 {
		t.Errorf("unexpected percent complete: %f", pct)
	}
	if snapshot.IsComplete() {
		t.Error("should not be complete yet")
	}
	if snapshot.EstimatedRemainingSeconds == nil {
		t.Error("expected estimated remaining to be calculated")
	}
}

func TestProgressCancel(t *testing.T) {
	p := NewProgress(100)
	p.Start()
	p.Cancel()

	if p.Status != StatusCancelled {
		t.Errorf("expected cancelled status, got: %s", p.Status)
	}
}

func TestProgressCallback(t *testing.T) {
	p := NewProgress(10)

	var calls int32
	var last atomic.Value
	p.SetOnUpdate(func(s ProgressSnapshot) {
		atomic.AddInt32(&calls, 1)
		last.Store(s)
	})

	p.Start()
	p.RecordAnalyzed(threat.LevelLow)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 callbacks, got: %d", got)
	}
	if s := last.Load().(ProgressSnapshot); s.AnalyzedCount != 1 || s.Status != StatusRunning {
		t.Errorf("unexpected snapshot in callback: %+v", s)
	}
}

func TestProgressSnapshotIsSuccess(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*Progress)
		expected bool
	}{
		{
			name: "completed with no failures",
			setup: func(p *Progress) {
				p.Start()
				p.RecordAnalyzed(threat.LevelLow)
				p.Complete(true)
			},
			expected: true,
		},
		{
			name: "completed with failures",
			setup: func(p *Progress) {
				p.Start()
				p.RecordFailed()
				p.Complete(false)
			},
			expected: false,
		},
		{
			name:     "not completed",
			setup:    func(p *Progress) { p.Start() },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgress(10)
			tt.setup(p)
			if got := p.Snapshot().IsSuccess(); got != tt.expected {
				t.Errorf("expected IsSuccess=%v, got %v", tt.expected, got)
			}
		})
	}
}
