// Package scheduler drives the step engine across the full horizon
// without blocking the caller. One step per yield: the engine never
// suspends mid-computation, and cancellation is checked before each
// step so a cancelled run leaves the timeline truncated at the last
// fully-computed snapshot.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/reliefiq/reliefsim/internal/model"
	"github.com/reliefiq/reliefsim/internal/sim"
)

// ProgressFunc is invoked after each completed step.
type ProgressFunc func(snap *model.Snapshot, stepIndex int)

// CompleteFunc is invoked once, when the horizon is reached or the run
// is cancelled, with the timeline produced so far.
type CompleteFunc func(timeline model.Timeline)

// Options tunes the cooperative yield between steps.
type Options struct {
	// YieldEvery inserts a pause between steps so long horizons never
	// monopolize the host. Zero yields the processor without sleeping.
	YieldEvery time.Duration
}

// Stepper walks a state through its horizon one explicit step at a
// time, for hosts that drive ticks themselves.
type Stepper struct {
	state *sim.State
	month int
	index int
}

// NewStepper returns a stepper positioned at month 0.
func NewStepper(state *sim.State) *Stepper {
	return &Stepper{state: state}
}

// Next advances one step and returns its snapshot and step index, or
// ok=false once the horizon has been passed.
func (st *Stepper) Next() (snap *model.Snapshot, stepIndex int, ok bool) {
	if st.month > st.state.Config.HorizonMonths {
		return nil, 0, false
	}
	snap = st.state.Advance(st.month)
	stepIndex = st.index
	st.month += st.state.Config.StepMonths
	st.index++
	return snap, stepIndex, true
}

// Run executes the full horizon on a background goroutine, reporting
// progress after every step. The returned function cancels the run;
// calling it is always safe, including after completion. A State must
// not be shared between concurrent runs; create a fresh one per run.
func Run(state *sim.State, opts Options, onProgress ProgressFunc, onComplete CompleteFunc) (cancel func()) {
	ctx, stop := context.WithCancel(context.Background())

	go func() {
		started := time.Now()
		stepper := NewStepper(state)
		for {
			select {
			case <-ctx.Done():
				slog.Info("simulation cancelled",
					"steps_completed", len(state.Timeline),
					"elapsed", time.Since(started).Round(time.Millisecond),
				)
				finish(state, onComplete)
				return
			default:
			}

			snap, idx, ok := stepper.Next()
			if !ok {
				slog.Info("simulation complete",
					"steps", len(state.Timeline),
					"horizon_months", state.Config.HorizonMonths,
					"elapsed", time.Since(started).Round(time.Millisecond),
				)
				finish(state, onComplete)
				return
			}
			if onProgress != nil {
				onProgress(snap, idx)
			}

			// Yield between steps, the only suspension point.
			if opts.YieldEvery > 0 {
				select {
				case <-time.After(opts.YieldEvery):
				case <-ctx.Done():
				}
			} else {
				runtime.Gosched()
			}
		}
	}()

	return stop
}

func finish(state *sim.State, onComplete CompleteFunc) {
	if onComplete != nil {
		onComplete(state.Timeline)
	}
}
