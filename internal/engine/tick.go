// Package engine provides the crowd simulation and the loop that drives it
// at a fixed tick rate.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/talgya/crowdforce/internal/config"
)

// idlePoll is how often a stopped or paused loop checks whether to resume.
const idlePoll = 100 * time.Millisecond

// Engine drives the simulation forward.
type Engine struct {
	Sim   *Simulation
	Store *config.Store

	// OnTick is called after every successful tick with the new frame.
	OnTick func(Frame)

	stopped atomic.Bool
}

// NewEngine creates an engine for sim.
func NewEngine(sim *Simulation, store *config.Store) *Engine {
	return &Engine{Sim: sim, Store: store}
}

// Interval returns the time budget of one tick at the configured rate.
func (e *Engine) Interval() time.Duration {
	rate := e.Store.Load().TickRate
	if rate <= 0 {
		rate = config.Default().TickRate
	}
	return time.Second / time.Duration(rate)
}

// Run issues ticks while the simulation is active. Blocks until ctx is done
// or Stop is called. A tick in progress always completes.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("simulation engine started", "interval", e.Interval())

	for !e.stopped.Load() && ctx.Err() == nil {
		if !e.Sim.Active() {
			e.sleep(ctx, idlePoll)
			continue
		}

		start := time.Now()
		if err := e.Sim.Step(); err != nil {
			slog.Error("tick failed", "error", err)
		} else if e.OnTick != nil {
			e.OnTick(e.Sim.Snapshot())
		}

		// Sleep for the remainder of the tick interval.
		if elapsed, target := time.Since(start), e.Interval(); elapsed < target {
			e.sleep(ctx, target-elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Sim.Status().Tick)
}

// Stop halts the loop after the current tick. A stopped engine does not
// restart.
func (e *Engine) Stop() {
	e.stopped.Store(true)
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
