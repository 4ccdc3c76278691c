// Runner drives a Simulation forward step by step.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Runner repeatedly steps a simulation until MaxSteps or Stop.
type Runner struct {
	Interval        time.Duration // Minimum wall time per step (0 = as fast as possible)
	MaxSteps        int           // Steps to run (0 = until Stop)
	CheckpointEvery int           // Steps between OnCheckpoint calls (0 = never)

	// Callbacks, populated during setup. step is the number of completed steps.
	OnStep       func(step int)
	OnCheckpoint func(step int) error

	running atomic.Bool
	stopped atomic.Bool
}

// NewRunner creates a runner for a fixed number of steps.
func NewRunner(steps int) *Runner {
	return &Runner{MaxSteps: steps}
}

// Running reports whether Run is in its loop.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Stop ends the loop after the step in progress.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

// Run steps sim until MaxSteps steps have completed in this call or Stop is
// called. A step or checkpoint error ends the run and is returned.
func (r *Runner) Run(sim *Simulation) error {
	r.running.Store(true)
	defer r.running.Store(false)

	slog.Info("simulation runner started", "step", sim.CurrentStep(), "max_steps", r.MaxSteps, "interval", r.Interval)

	for done := 0; r.MaxSteps == 0 || done < r.MaxSteps; done++ {
		if r.stopped.Load() {
			break
		}
		start := time.Now()

		if err := sim.Step(); err != nil {
			return err
		}
		step := sim.CurrentStep()

		if r.OnStep != nil {
			r.OnStep(step)
		}
		if r.CheckpointEvery > 0 && step%r.CheckpointEvery == 0 && r.OnCheckpoint != nil {
			if err := r.OnCheckpoint(step); err != nil {
				return fmt.Errorf("checkpoint at step %d: %w", step, err)
			}
		}

		if r.Interval > 0 {
			if elapsed := time.Since(start); elapsed < r.Interval {
				time.Sleep(r.Interval - elapsed)
			}
		}
	}

	slog.Info("simulation runner stopped", "step", sim.CurrentStep())
	return nil
}
