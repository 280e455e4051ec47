package worker

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress tracks a tile batch and draws a single-line bar on a terminal.
type Progress struct {
	startTime time.Time
	output    io.Writer
	total     int
	completed int
	failed    int
	bytes     int64
	mu        sync.RWMutex
	enabled   bool
}

// NewProgress creates a progress tracker that draws on w when enabled.
func NewProgress(w io.Writer, total int, enabled bool) *Progress {
	return &Progress{
		total:     total,
		startTime: time.Now(),
		output:    w,
		enabled:   enabled && w != nil,
	}
}

// Update records the completion counters reported by the pool.
func (p *Progress) Update(completed, total, failed int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.failed = failed
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// AddBytes accumulates the encoded size of stored tiles.
func (p *Progress) AddBytes(n int) {
	p.mu.Lock()
	p.bytes += int64(n)
	p.mu.Unlock()
}

// Callback returns a ProgressFunc suitable for use with Pool.Config.
func (p *Progress) Callback() ProgressFunc {
	return p.Update
}

type snapshot struct {
	completed, total, failed int
	bytes                    int64
	elapsed                  time.Duration
}

func (p *Progress) snapshot() snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return snapshot{
		completed: p.completed,
		total:     p.total,
		failed:    p.failed,
		bytes:     p.bytes,
		elapsed:   time.Since(p.startTime),
	}
}

func (s snapshot) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.completed) / s.elapsed.Seconds()
}

// Print draws the current state, overwriting the previous line.
func (p *Progress) Print() {
	s := p.snapshot()

	filled := 0
	if s.total > 0 {
		filled = s.completed * barWidth / s.total
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)

	var b strings.Builder
	fmt.Fprintf(&b, "\r[%s] %d/%d tiles", bar, s.completed, s.total)
	if s.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", s.failed)
	}
	rate := s.rate()
	fmt.Fprintf(&b, " - %.1f tiles/sec", rate)
	if s.completed < s.total && rate > 0 {
		eta := time.Duration(float64(s.total-s.completed) / rate * float64(time.Second))
		fmt.Fprintf(&b, " - ETA: %s", formatDuration(eta))
	}
	if s.total > 0 && s.completed == s.total {
		fmt.Fprintf(&b, " - Done in %s", formatDuration(s.elapsed))
	}
	b.WriteString("          ")

	fmt.Fprint(p.output, b.String())
}

// Done prints the final progress and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		fmt.Fprintln(p.output)
	}
}

// Summary returns a one-line description of the finished batch.
func (p *Progress) Summary() string {
	s := p.snapshot()
	return fmt.Sprintf("Rendered %d/%d tiles (%d failed, %s) in %s (%.1f tiles/sec)",
		s.completed-s.failed, s.total, s.failed, formatBytes(s.bytes), formatDuration(s.elapsed), s.rate())
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
