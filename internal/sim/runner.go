package sim

import (
	"context"
	"fmt"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/mpc"
)

// Metric aggregates one scalar over a closed-loop run.
type Metric interface {
	Name() string
	Observe(x dynamo.State, u dynamo.Control, t float64)
	Value() float64
	Reset()
}

// TickMetric is an optional extension for metrics that consume the solver
// outcome of each tick rather than the plant signals.
type TickMetric interface {
	Metric
	ObserveTick(status int, timings map[string]float64)
}

// Observer receives every closed-loop step.
type Observer interface {
	OnStep(x dynamo.State, u dynamo.Control, t float64)
}

type Config struct {
	Steps         int
	ValidateState bool
}

type Result struct {
	States   dynamo.Trajectory
	Controls dynamo.ControlSequence
	Times    []float64
	Metrics  map[string]float64

	// Fails is the controller's cumulative failure count at run end;
	// FailSteps records the tick indices whose solve did not converge.
	Fails      int
	FailSteps  []int
	StepsTaken int
	Errors     []error
}

// Runner drives one controller against the ground-truth integrator. The
// controller ticks synchronously; the runner owns it for the whole run.
type Runner struct {
	ctrl      *mpc.Controller
	dyn       *Dynamics
	metrics   []Metric
	observers []Observer
}

func NewRunner(ctrl *mpc.Controller, dyn *Dynamics) *Runner {
	return &Runner{ctrl: ctrl, dyn: dyn}
}

func (r *Runner) AddMetric(m Metric)     { r.metrics = append(r.metrics, m) }
func (r *Runner) AddObserver(o Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Run(ctx context.Context, x0 dynamo.State, cfg Config) (*Result, error) {
	if cfg.Steps <= 0 {
		return nil, fmt.Errorf("sim: steps must be positive, got %d", cfg.Steps)
	}

	result := &Result{
		States:   make(dynamo.Trajectory, 0, cfg.Steps+1),
		Controls: make(dynamo.ControlSequence, 0, cfg.Steps),
		Times:    make([]float64, 0, cfg.Steps+1),
		Metrics:  make(map[string]float64),
	}
	for _, m := range r.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; i < cfg.Steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		status := r.ctrl.Solve(x)
		u := r.ctrl.ProvideControl()
		if status != 0 {
			result.FailSteps = append(result.FailSteps, i)
		}

		for _, m := range r.metrics {
			m.Observe(x, u, t)
			if tm, ok := m.(TickMetric); ok {
				tm.ObserveTick(status, r.ctrl.Timings())
			}
		}
		for _, obs := range r.observers {
			obs.OnStep(x, u, t)
		}

		x = r.dyn.Simulate(x, u)
		t += r.dyn.dt

		if cfg.ValidateState && !x.IsValid() {
			result.Errors = append(result.Errors,
				fmt.Errorf("sim: invalid state (NaN/Inf) at step %d", i))
			break
		}

		result.StepsTaken++
		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u.Clone())
		result.Times = append(result.Times, t)
	}

	result.Fails = r.ctrl.Fails()
	for _, m := range r.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}
