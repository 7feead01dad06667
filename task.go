package zipalign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	aligncore "github.com/meigma/zipalign/core"
)

// Task is an alignment or verification running in the background.
//
// Progress is published on Events, which is closed after exactly one
// terminal event (StageDone, StageFailed or StageCancelled). Consumers that
// fall behind lose intermediate events but never the terminal one. Task is
// safe for concurrent use.
type Task[R any] struct {
	events   chan ProgressEvent
	cancel   context.CancelCauseFunc
	g        *errgroup.Group
	done     chan struct{}
	percent  atomic.Uint64 // math.Float64bits of the last reported percentage
	terminal bool          // written only by the run goroutine
	result   R
}

// runFunc executes one task body. It must report progress through emit.
type runFunc[R any] func(ctx context.Context, emit aligncore.ProgressFunc) (R, error)

func startTask[R any](ctx context.Context, buffer int, run runFunc[R]) *Task[R] {
	ctx, cancel := context.WithCancelCause(ctx)
	g, gctx := errgroup.WithContext(ctx)
	t := &Task[R]{
		events: make(chan ProgressEvent, buffer),
		cancel: cancel,
		g:      g,
		done:   make(chan struct{}),
	}
	g.Go(func() error {
		defer close(t.done)
		defer close(t.events)
		res, err := run(gctx, t.publish)
		if err != nil && gctx.Err() != nil && !errors.Is(err, ErrCancelled) {
			// Failed before the engine started, e.g. a cancelled remote probe.
			err = fmt.Errorf("%w: %w", ErrCancelled, context.Cause(gctx))
		}
		if !t.terminal {
			t.publish(terminalEvent(err, t.Percent()))
		}
		t.result = res
		return err
	})
	return t
}

// terminalEvent builds the final event for a run that ended before the
// engine could report one.
func terminalEvent(err error, percent float64) ProgressEvent {
	switch {
	case err == nil:
		return ProgressEvent{Stage: StageDone, Percent: 100}
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		return ProgressEvent{Stage: StageCancelled, Percent: percent, Short: "cancelled", Err: err}
	default:
		return ProgressEvent{Stage: StageFailed, Percent: percent, Short: err.Error(), Detail: aligncore.Diagnose(err), Err: err}
	}
}

// publish records ev and forwards it to the event channel. It runs on the
// task goroutine, which is the channel's only sender.
func (t *Task[R]) publish(ev ProgressEvent) {
	t.percent.Store(math.Float64bits(ev.Percent))
	if !ev.Stage.Terminal() {
		select {
		case t.events <- ev:
		default:
		}
		return
	}
	t.terminal = true
	for {
		select {
		case t.events <- ev:
			return
		default:
		}
		// Full: discard the oldest pending event to make room.
		select {
		case <-t.events:
		default:
		}
	}
}

// Events returns the channel of progress events. It is closed once the
// task has finished.
func (t *Task[R]) Events() <-chan ProgressEvent {
	return t.events
}

// Percent returns the last reported completion percentage.
func (t *Task[R]) Percent() float64 {
	return math.Float64frombits(t.percent.Load())
}

// Cancel asks the task to stop at the next entry boundary. A cancelled
// alignment leaves no output file behind.
func (t *Task[R]) Cancel() {
	t.cancel(context.Canceled)
}

// Done returns a channel that is closed when the task has finished.
func (t *Task[R]) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its result.
func (t *Task[R]) Wait() (R, error) {
	err := t.g.Wait()
	t.cancel(nil)
	return t.result, err
}
