package terminal

import (
	"fmt"
	"io"
	"sync"
)

// Progress counts finished units of work on a single status line. Nothing
// is written unless the output is a terminal.
type Progress struct {
	out       io.Writer
	enabled   bool
	label     string
	total     int
	completed int
	mu        sync.Mutex
}

// NewProgress creates a progress line for total units
func (t *Terminal) NewProgress(label string, total int) *Progress {
	return &Progress{
		out:     t.out,
		enabled: t.isTTY && total > 1,
		label:   label,
		total:   total,
	}
}

// Done records one finished unit named name. It is safe for concurrent use.
func (p *Progress) Done(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed++
	if !p.enabled {
		return
	}
	percentage := float64(p.completed) / float64(p.total) * 100
	fmt.Fprintf(p.out, "\r\033[K🔍 %s [%d/%d] (%.1f%%) - %s", p.label, p.completed, p.total, percentage, name)
	if p.completed == p.total {
		fmt.Fprintln(p.out)
	}
}

// Completed returns the number of finished units
func (p *Progress) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}
