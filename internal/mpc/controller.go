package mpc

import (
	"errors"
	"fmt"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
	"github.com/MaxBertus/safe-mpc/internal/ocp"
)

var (
	// ErrHorizon indicates a horizon resize below one stage.
	ErrHorizon = errors.New("mpc: horizon must be at least 1")
)

// Options configures a Controller.
type Options struct {
	Kind  Kind
	N     int     // horizon length in stages
	Dt    float64 // stage duration
	Alpha float64 // base conservatism for the safety parameter

	// AlphaSafe is the tightened conservatism applied at the receding
	// safety stage; only meaningful for the Receding kind.
	AlphaSafe float64
}

// Controller is the receding-horizon control loop. It owns exactly one
// solver, one guess, and a read-only model reference. A Controller is
// single-goroutine: no two ticks may execute concurrently.
type Controller struct {
	kind     Kind
	m        *model.Model
	solver   ocp.Solver
	compiled *ocp.Compiled
	guess    *Guess

	n  int
	dt float64

	alpha     float64
	alphaSafe float64
	safeIdx   int // receding safety stage, Receding kind only

	fails      int
	lastStatus int
	solved     bool
	timings    map[string]float64

	xref dynamo.State
}

// New builds a controller around a model, an external solver and the
// compiled constraint sets. The solver instance must be exclusive to this
// controller.
func New(m *model.Model, solver ocp.Solver, compiled *ocp.Compiled, opts Options) (*Controller, error) {
	if opts.N < 1 {
		return nil, ErrHorizon
	}
	if opts.Dt <= 0 {
		return nil, fmt.Errorf("mpc: dt must be positive, got %f", opts.Dt)
	}
	if opts.Kind != Naive && !m.HasFilter() {
		return nil, fmt.Errorf("mpc: %s controller requires a safety filter", opts.Kind)
	}
	alphaSafe := opts.AlphaSafe
	if alphaSafe < opts.Alpha {
		alphaSafe = opts.Alpha
	}
	c := &Controller{
		kind:      opts.Kind,
		m:         m,
		solver:    solver,
		compiled:  compiled,
		guess:     NewGuess(opts.N, m.NX(), m.NU()),
		n:         opts.N,
		dt:        opts.Dt,
		alpha:     opts.Alpha,
		alphaSafe: alphaSafe,
		safeIdx:   opts.N,
		xref:      make(dynamo.State, m.NX()),
	}
	return c, nil
}

func (c *Controller) Kind() Kind          { return c.kind }
func (c *Controller) Horizon() int        { return c.n }
func (c *Controller) Fails() int          { return c.fails }
func (c *Controller) SafeIdx() int        { return c.safeIdx }
func (c *Controller) Guess() *Guess       { return c.guess }
func (c *Controller) Model() *model.Model { return c.m }

// Timings returns the named timing scalars of the last solve.
func (c *Controller) Timings() map[string]float64 { return c.timings }

// SetReference forwards the tracking target to the solver cost.
func (c *Controller) SetReference(xref dynamo.State) {
	c.xref = xref.Clone()
}

// SetGuess replaces the warm-start trajectories.
func (c *Controller) SetGuess(x dynamo.Trajectory, u dynamo.ControlSequence) error {
	return c.guess.Seed(x, u)
}

// SetWeights forwards the diagonal state and control cost weights to the
// solver.
func (c *Controller) SetWeights(q, r []float64) error {
	if len(q) != c.m.NX() || len(r) != c.m.NU() {
		return dynamo.ErrDimensionMismatch
	}
	c.solver.SetWeights(q, r)
	return nil
}

// usesSafetyParam reports whether the solver carries a per-stage safety
// conservatism parameter for this controller kind.
func (c *Controller) usesSafetyParam() bool {
	return c.kind != Naive
}

// stageAlpha returns the conservatism applied at a stage. The Receding
// kind tightens it at the receding safety stage.
func (c *Controller) stageAlpha(stage int) float64 {
	if c.kind == Receding && stage == c.safeIdx {
		return c.alphaSafe
	}
	return c.alpha
}

// Solve runs one tick of the optimizer: reset the iterate, pin stage 0 to
// x0, load the warm start, solve, and capture the stage values into the
// temporary buffers whatever the returned status. The caller must follow
// up with ProvideControl to advance the guess machine.
func (c *Controller) Solve(x0 dynamo.State) int {
	c.solver.Reset()
	c.solver.SetInitialState(x0)
	c.solver.SetReference(c.xref)

	for i := 0; i < c.n; i++ {
		c.solver.SetGuess(i, ocp.FieldState, c.guess.X[i])
		c.solver.SetGuess(i, ocp.FieldControl, c.guess.U[i])
		if c.usesSafetyParam() {
			c.solver.SetParam(i, c.stageAlpha(i))
		}
	}
	c.solver.SetGuess(c.n, ocp.FieldState, c.guess.X[c.n])
	if c.usesSafetyParam() {
		c.solver.SetParam(c.n, c.stageAlpha(c.n))
	}

	res := c.solver.Solve()
	c.timings = res.Timings

	for i := 0; i <= c.n; i++ {
		if x := c.solver.Get(i, ocp.FieldState); x != nil {
			copy(c.guess.TempX[i], x)
		}
	}
	for i := 0; i < c.n; i++ {
		if u := c.solver.Get(i, ocp.FieldControl); u != nil {
			copy(c.guess.TempU[i], u)
		}
	}

	c.lastStatus = res.Status
	c.solved = true
	return res.Status
}

// ProvideControl advances the guess state machine for the last solve and
// returns the control action for this tick.
func (c *Controller) ProvideControl() dynamo.Control {
	if !c.solved {
		panic("mpc: ProvideControl called before Solve")
	}
	c.solved = false

	success := c.lastStatus == ocp.StatusSuccess
	if !success {
		c.fails++
	}
	u := c.guess.Advance(success)

	if c.kind == Receding {
		// The enforced safety stage recedes with the horizon shift.
		if c.safeIdx > 1 {
			c.safeIdx--
		} else {
			c.safeIdx = c.n
		}
	}
	return u
}

// Step is one full tick: Solve followed by ProvideControl.
func (c *Controller) Step(x0 dynamo.State) (dynamo.Control, int) {
	status := c.Solve(x0)
	return c.ProvideControl(), status
}

// Initialize bootstraps a feasible warm start outside the tick loop: fill
// the guess with the constant pair (x0, u0), solve, and adopt the solution
// unshifted. An initial condition violating an obstacle constraint is
// rejected before any solve.
func (c *Controller) Initialize(x0 dynamo.State, u0 dynamo.Control) bool {
	if c.compiled != nil && !c.compiled.CheckCollision(x0) {
		return false
	}
	c.guess.Fill(x0, u0)
	if c.Solve(x0) != ocp.StatusSuccess {
		c.solved = false
		return false
	}
	c.solved = false
	c.guess.Adopt()
	return true
}

// ResetHorizon changes the horizon length at runtime, the only structural
// mutation permitted on the controller. A length below 1 is rejected
// before anything mutates.
func (c *Controller) ResetHorizon(n int) error {
	if n < 1 {
		return ErrHorizon
	}
	c.n = n
	c.solver.SetHorizon(n, c.dt)
	c.guess.Resize(n)
	if c.safeIdx > n {
		c.safeIdx = n
	}
	return nil
}
