// Package sim provides the ground-truth integration layer: trajectory
// verification against the optimizer's output, the closed-loop runner, and
// parallel warm-start generation.
package sim

import (
	"math"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
)

// Dynamics re-simulates candidate control sequences through the integrator,
// independently of whatever the optimizer reported.
type Dynamics struct {
	m     *model.Model
	integ dynamo.Integrator
	dt    float64
	tol   float64
}

func NewDynamics(m *model.Model, dt, tol float64) *Dynamics {
	return &Dynamics{
		m:     m,
		integ: dynamo.NewRK4(),
		dt:    dt,
		tol:   tol,
	}
}

// Simulate advances the state by one stage under control u.
func (d *Dynamics) Simulate(x dynamo.State, u dynamo.Control) dynamo.State {
	return d.integ.Step(d.m.System(), x, u, 0, d.dt)
}

// CheckDynamics re-simulates the control sequence from the trajectory's
// first state and compares against the optimizer's reported states. It
// accepts iff the stacked deviation norm stays below the tolerance scaled
// by sqrt(N+1), so the verdict does not tighten with longer horizons. It
// is a consistency check only: nothing is mutated.
func (d *Dynamics) CheckDynamics(x dynamo.Trajectory, u dynamo.ControlSequence) bool {
	n := len(u)
	if len(x) != n+1 {
		return false
	}
	cur := x[0].Clone()
	sum := 0.0
	for i := 0; i < n; i++ {
		cur = d.Simulate(cur, u[i])
		diff := x[i+1].Sub(cur)
		for _, v := range diff {
			sum += v * v
		}
	}
	return math.Sqrt(sum) < d.tol*math.Sqrt(float64(n+1))
}
