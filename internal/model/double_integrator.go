package model

import "github.com/MaxBertus/safe-mpc/internal/dynamo"

// DoubleIntegrator is a chain of decoupled double integrators, the dummy
// plant used to exercise the controller machinery in tests. State layout:
// [q1..qn dq1..dqn], with ddq_i = u_i.
type DoubleIntegrator struct {
	n int
}

func NewDoubleIntegrator(n int) *DoubleIntegrator {
	return &DoubleIntegrator{n: n}
}

func (d *DoubleIntegrator) StateDim() int   { return 2 * d.n }
func (d *DoubleIntegrator) ControlDim() int { return d.n }

func (d *DoubleIntegrator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	out := make(dynamo.State, 2*d.n)
	for i := 0; i < d.n; i++ {
		out[i] = x[d.n+i]
		if i < len(u) {
			out[d.n+i] = u[i]
		}
	}
	return out
}

// Position treats the first coordinate as a world-frame height, which is
// all the obstacle constraints need from this plant.
func (d *DoubleIntegrator) Position(q dynamo.State) [3]float64 {
	p := [3]float64{}
	for i := 0; i < d.n && i < 3; i++ {
		p[i] = q[i]
	}
	if d.n == 1 {
		return [3]float64{0, 0, q[0]}
	}
	return p
}

// NewDoubleIntegratorModel builds the constrained model around an n-dof
// double integrator plant. Gravity compensation is identically zero.
func NewDoubleIntegratorModel(p Params, n int) *Model {
	plant := NewDoubleIntegrator(n)
	return newModel("double_integrator", plant, p, plant.Position, nil)
}
