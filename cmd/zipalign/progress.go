package main

import (
	"fmt"
	"io"
	"time"

	"github.com/meigma/zipalign"
)

const progressInterval = 250 * time.Millisecond

// progressPrinter renders task progress as a single rewritten status line.
type progressPrinter struct {
	w        io.Writer
	disabled bool
	last     time.Time
	drawn    bool
}

func newProgressPrinter(w io.Writer, disabled bool) *progressPrinter {
	return &progressPrinter{w: w, disabled: disabled}
}

// report prints ev, throttled to progressInterval. Terminal events clear
// the status line.
func (p *progressPrinter) report(ev zipalign.ProgressEvent) {
	if p.disabled {
		return
	}
	if ev.Stage.Terminal() {
		if p.drawn {
			fmt.Fprint(p.w, "\r\033[K")
			p.drawn = false
		}
		return
	}
	now := time.Now()
	if now.Sub(p.last) < progressInterval {
		return
	}
	p.last = now
	p.drawn = true
	fmt.Fprintf(p.w, "\r\033[K%5.1f%%  %s  %s", ev.Percent, ev.Stage, ev.Path)
}

// formatSize returns a human-readable size string.
func formatSize(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
