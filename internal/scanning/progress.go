package scanning

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// ProgressTracker reports scan progress for one or more labelled directories.
// On a terminal it redraws a single status line; otherwise it logs at every
// tenth of the way through each directory.
type ProgressTracker struct {
	mu          sync.Mutex
	w           io.Writer
	interactive bool
	interval    time.Duration
	lastDraw    time.Time
	counts      map[string][2]int
	labels      []string
	drawn       bool
}

// NewProgressTracker creates a tracker writing to w
func NewProgressTracker(w io.Writer, interactive bool) *ProgressTracker {
	return &ProgressTracker{
		w:           w,
		interactive: interactive,
		interval:    100 * time.Millisecond,
		counts:      make(map[string][2]int),
	}
}

// Update records progress for label. Its signature matches ProgressFunc.
func (p *ProgressTracker) Update(label string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.counts[label]; !ok {
		p.labels = append(p.labels, label)
	}
	prev := p.counts[label]
	// Workers finish out of order; never move backwards
	if done < prev[0] {
		return
	}
	p.counts[label] = [2]int{done, total}

	if !p.interactive {
		step := max(total/10, 1)
		if done == total || done%step == 0 {
			slog.Info("Scan progress", "set", label, "done", done, "total", total)
		}
		return
	}

	now := time.Now()
	if done != total && now.Sub(p.lastDraw) < p.interval {
		return
	}
	p.lastDraw = now
	p.draw()
}

// Finish ends the status line so later output starts on a fresh line
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interactive && p.drawn {
		p.draw()
		fmt.Fprintln(p.w)
	}
}

// draw renders every label on one carriage-returned line. Callers hold mu.
func (p *ProgressTracker) draw() {
	parts := make([]string, 0, len(p.labels))
	for _, label := range slices.Sorted(slices.Values(p.labels)) {
		c := p.counts[label]
		parts = append(parts, fmt.Sprintf("%s: %d/%d", label, c[0], c[1]))
	}
	fmt.Fprintf(p.w, "\rProgress: %s", strings.Join(parts, "  "))
	p.drawn = true
}
