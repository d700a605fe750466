package ocp

import (
	"time"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
)

// Solver status codes shared by implementations.
const (
	StatusSuccess    = 0
	StatusBounds     = 1
	StatusCollision  = 2
	StatusSafety     = 3
	StatusDegenerate = 4
)

// TrackingSolver is a baseline Solver: it rolls a saturated PD-plus-gravity
// tracking law through the integrator and reports whether the resulting
// trajectory satisfies the compiled constraints. It stands in for the
// external NLP backend in tests and the demo CLI; trajectories it returns
// are dynamically consistent by construction.
type TrackingSolver struct {
	m        *model.Model
	integ    dynamo.Integrator
	compiled *Compiled

	n  int
	dt float64

	Kp, Kd float64

	x0     dynamo.State
	xref   dynamo.State
	alphas []float64

	xs dynamo.Trajectory
	us dynamo.ControlSequence
}

func NewTrackingSolver(m *model.Model, compiled *Compiled, n int, dt float64) *TrackingSolver {
	s := &TrackingSolver{
		m:        m,
		integ:    dynamo.NewRK4(),
		compiled: compiled,
		Kp:       25.0,
		Kd:       8.0,
		xref:     make(dynamo.State, m.NX()),
	}
	s.SetHorizon(n, dt)
	return s
}

func (s *TrackingSolver) Reset() {
	s.x0 = nil
	for i := range s.alphas {
		s.alphas[i] = s.m.Alpha()
	}
}

func (s *TrackingSolver) SetInitialState(x0 dynamo.State) { s.x0 = x0.Clone() }

func (s *TrackingSolver) SetGuess(stage int, field string, value []float64) {
	// The rollout law does not consume the primal guess; stage values are
	// regenerated in Solve. Accepted for interface fidelity.
}

func (s *TrackingSolver) SetParam(stage int, alpha float64) {
	if stage >= 0 && stage < len(s.alphas) {
		s.alphas[stage] = alpha
	}
}

func (s *TrackingSolver) SetReference(xref dynamo.State) { s.xref = xref.Clone() }

// SetWeights maps the diagonal cost weights onto the tracking gains: the
// first position and velocity weights over the first control weight.
func (s *TrackingSolver) SetWeights(q, r []float64) {
	if len(q) < s.m.NX() || len(r) < 1 || r[0] <= 0 {
		return
	}
	s.Kp = q[0] / r[0]
	s.Kd = q[s.m.NQ()] / r[0]
}

func (s *TrackingSolver) SetHorizon(n int, dt float64) {
	s.n = n
	s.dt = dt
	s.xs = make(dynamo.Trajectory, n+1)
	s.us = make(dynamo.ControlSequence, n)
	for i := range s.xs {
		s.xs[i] = make(dynamo.State, s.m.NX())
	}
	for i := range s.us {
		s.us[i] = make(dynamo.Control, s.m.NU())
	}
	s.alphas = make([]float64, n+1)
	for i := range s.alphas {
		s.alphas[i] = s.m.Alpha()
	}
}

func (s *TrackingSolver) Solve() Result {
	start := time.Now()
	status := s.rollout()
	return Result{
		Status: status,
		Timings: map[string]float64{
			"time_tot": time.Since(start).Seconds(),
		},
	}
}

func (s *TrackingSolver) rollout() int {
	if s.x0 == nil {
		return StatusDegenerate
	}
	nq := s.m.NQ()
	sys := s.m.System()

	copy(s.xs[0], s.x0)
	for i := 0; i < s.n; i++ {
		x := s.xs[i]
		u := s.m.Gravity(x[:nq])
		for j := 0; j < s.m.NU() && j < nq; j++ {
			u[j] += s.Kp*(s.xref[j]-x[j]) - s.Kd*x[nq+j]
		}
		s.clamp(u)
		copy(s.us[i], u)

		next := s.integ.Step(sys, x, u, float64(i)*s.dt, s.dt)
		if !next.IsValid() {
			return StatusDegenerate
		}
		copy(s.xs[i+1], next)
	}

	for i := 1; i <= s.n; i++ {
		if !s.m.CheckStateConstraints(s.xs[i]) {
			return StatusBounds
		}
		if !s.compiled.CheckCollision(s.xs[i]) {
			return StatusCollision
		}
	}
	for i := 1; i < s.n; i++ {
		if !s.marginSatisfied(s.compiled.Running, s.xs[i], s.alphas[i]) {
			return StatusSafety
		}
	}
	if !s.hardSatisfied(s.compiled.Terminal, s.xs[s.n]) {
		return StatusCollision
	}
	if !s.marginSatisfied(s.compiled.Terminal, s.xs[s.n], s.alphas[s.n]) {
		return StatusSafety
	}
	return StatusSuccess
}

// hardSatisfied ignores soft entries and safety margins; margins carry a
// per-stage alpha and go through marginSatisfied.
func (s *TrackingSolver) hardSatisfied(set []StageConstraint, x dynamo.State) bool {
	for _, sc := range set {
		if sc.Soft || sc.Kind == ConstraintSafetyMargin {
			continue
		}
		v := sc.Eval(x)
		if v < sc.Lower || v > sc.Upper {
			return false
		}
	}
	return true
}

// marginSatisfied evaluates hard safety-margin entries at the alpha set for
// this stage rather than the model default baked into Eval.
func (s *TrackingSolver) marginSatisfied(set []StageConstraint, x dynamo.State, alpha float64) bool {
	for _, sc := range set {
		if sc.Kind != ConstraintSafetyMargin || sc.Soft {
			continue
		}
		if s.m.Filter().Margin(x, alpha) < sc.Lower {
			return false
		}
	}
	return true
}

func (s *TrackingSolver) clamp(u dynamo.Control) {
	lo, hi := s.m.UMin(), s.m.UMax()
	for i := range u {
		if u[i] < lo[i] {
			u[i] = lo[i]
		}
		if u[i] > hi[i] {
			u[i] = hi[i]
		}
	}
}

func (s *TrackingSolver) Get(stage int, field string) []float64 {
	switch field {
	case FieldState:
		if stage >= 0 && stage <= s.n {
			return s.xs[stage]
		}
	case FieldControl:
		if stage >= 0 && stage < s.n {
			return s.us[stage]
		}
	}
	return nil
}
