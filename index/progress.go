package index

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressFunc receives the number of chunks embedded so far and the total.
type ProgressFunc func(done, total int)

// ProgressTracker writes embedding progress to a terminal.
type ProgressTracker struct {
	writer         io.Writer
	reportInterval int
	total          int
	current        int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker that reports at least every
// reportInterval chunks.
func NewProgressTracker(writer io.Writer, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		reportInterval: reportInterval,
	}
}

// Func adapts the tracker to a ProgressFunc. The first call starts the clock;
// reaching the total finishes the line.
func (p *ProgressTracker) Func() ProgressFunc {
	return func(done, total int) {
		p.mu.Lock()
		defer p.mu.Unlock()

		if !p.started {
			p.startTime = time.Now()
			p.started = true
			p.lastReported = 0
		}
		p.total = total
		p.current = min(done, total)

		if p.current == p.total {
			p.report()
			fmt.Fprintln(p.writer)
			p.started = false
			return
		}
		if p.current-p.lastReported >= p.reportInterval {
			p.report()
			p.lastReported = p.current
		}
	}
}

// Elapsed returns the time since the current run started.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *ProgressTracker) report() {
	rate := 0.0
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rEmbedding: %d/%d (%.1f%%) - %.1f chunks/s",
		p.current, p.total, percentage, rate)
}
