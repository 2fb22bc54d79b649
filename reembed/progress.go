package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how many chunks a pass has scanned, with a rate
// and a running failure count.
type ProgressTracker struct {
	writer         io.Writer
	total          int
	current        int
	failed         int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a tracker that prints to writer every
// reportInterval chunks out of total.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking. offset seeds the counter when a pass resumes.
func (p *ProgressTracker) Start(offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = min(offset, p.total)
	p.failed = 0
	p.lastReported = p.current
}

// Advance records scanned chunks, of which failed could not be re-indexed.
func (p *ProgressTracker) Advance(scanned, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current = min(p.current+scanned, p.total)
	p.failed += failed

	if p.current-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final line. Unlike a normal report it does not force
// the counter to total, so an aborted pass shows where it stopped.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report must be called with the lock held.
func (p *ProgressTracker) report() {
	rate := 0.0
	if secs := time.Since(p.startTime).Seconds(); secs > 0 {
		rate = float64(p.current) / secs
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rReembed: %d/%d chunks (%.1f%%), %d failed - %.1f chunks/s",
		p.current, p.total, percentage, p.failed, rate)
}
