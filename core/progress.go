package zipalign

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Phase weights, in percent of a whole run.
const (
	weightOpen      = 5
	weightCopy      = 80
	weightDirectory = 10
	weightScan      = 90
	weightClose     = 5
)

// tracker accumulates the completion percentage of a single run and
// forwards events to the configured callback.
type tracker struct {
	fn      ProgressFunc
	percent float64
}

func newTracker(fn ProgressFunc) *tracker {
	return &tracker{fn: fn}
}

// emit sends an event if a callback is configured.
func (t *tracker) emit(ev ProgressEvent) {
	if t.fn == nil {
		return
	}
	ev.Percent = t.percent
	t.fn(ev)
}

// message reports a status line without moving the percentage.
func (t *tracker) message(stage ProgressStage, short string) {
	t.emit(ProgressEvent{Stage: stage, Short: short})
}

// set moves the percentage to an absolute value.
func (t *tracker) set(stage ProgressStage, percent float64) {
	t.percent = min(percent, 100)
	t.emit(ProgressEvent{Stage: stage})
}

// advance moves the percentage forward and reports an optional entry line.
func (t *tracker) advance(stage ProgressStage, delta float64, path, detail string) {
	t.percent = min(t.percent+delta, 100)
	t.emit(ProgressEvent{Stage: stage, Path: path, Detail: detail})
}

// finish sends the terminal event for a run that ended with err.
func (t *tracker) finish(err error, doneMsg string) {
	switch {
	case err == nil:
		t.percent = 100
		t.emit(ProgressEvent{Stage: StageDone, Short: doneMsg})
	case errors.Is(err, ErrCancelled):
		t.emit(ProgressEvent{Stage: StageCancelled, Short: "cancelled", Err: err})
	default:
		t.emit(ProgressEvent{Stage: StageFailed, Short: err.Error(), Detail: Diagnose(err), Err: err})
	}
}

// cancelled wraps the context's error so that callers can match both
// ErrCancelled and the underlying context error.
func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// settle reports err as a cancellation when it surfaced after ctx was done.
// Sources bound to ctx, such as remote readers, fail their in-flight reads
// with the bare context error, which would otherwise read as an I/O failure.
func settle(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, ErrCancelled) || ctx.Err() == nil {
		return err
	}
	return cancelled(ctx)
}

// Diagnose renders the chain of wrapped errors, one per line, innermost
// last, with the concrete type of each.
func Diagnose(err error) string {
	var b strings.Builder
	var walk func(err error, depth int)
	walk = func(err error, depth int) {
		msg := strings.ReplaceAll(err.Error(), "\n", "; ")
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), err, msg)
		switch u := err.(type) { //nolint:errorlint // walking the wrap tree explicitly
		case interface{ Unwrap() error }:
			if inner := u.Unwrap(); inner != nil {
				walk(inner, depth+1)
			}
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, depth+1)
			}
		}
	}
	walk(err, 0)
	return strings.TrimSuffix(b.String(), "\n")
}
