package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
)

const (
	defaultLinkMass   = 0.5
	defaultLinkLength = 0.3
	defaultDamping    = 0.05
	defaultGravity    = 9.81
	defaultBaseHeight = 1.0
)

// TriplePendulum is a torque-actuated planar three-link chain with point
// masses at the link ends, expressed in absolute link angles measured from
// the downward vertical. State layout: [q1 q2 q3 dq1 dq2 dq3].
type TriplePendulum struct {
	Mass    [3]float64
	Length  [3]float64
	Damping float64
	Gravity float64

	// BaseHeight is the world-frame height of the first joint; the tip
	// height used for floor constraints is measured from the ground.
	BaseHeight float64
}

func NewTriplePendulum() *TriplePendulum {
	return &TriplePendulum{
		Mass:       [3]float64{defaultLinkMass, defaultLinkMass, defaultLinkMass},
		Length:     [3]float64{defaultLinkLength, defaultLinkLength, defaultLinkLength},
		Damping:    defaultDamping,
		Gravity:    defaultGravity,
		BaseHeight: defaultBaseHeight,
	}
}

func (p *TriplePendulum) StateDim() int   { return 6 }
func (p *TriplePendulum) ControlDim() int { return 3 }

// tailMass returns the total mass carried at or beyond link i.
func (p *TriplePendulum) tailMass(i int) float64 {
	m := 0.0
	for k := i; k < 3; k++ {
		m += p.Mass[k]
	}
	return m
}

func (p *TriplePendulum) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	q := x[:3]
	dq := x[3:]

	// Mass matrix and bias terms for a point-mass chain in absolute
	// angles: M[i][j] = m_tail(max(i,j)) l_i l_j cos(q_i - q_j).
	var mData [9]float64
	var rhs [3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			tail := p.tailMass(i)
			if j > i {
				tail = p.tailMass(j)
			}
			mData[i*3+j] = tail * p.Length[i] * p.Length[j] * math.Cos(q[i]-q[j])
		}

		// Centrifugal coupling and gravity.
		c := 0.0
		for j := 0; j < 3; j++ {
			tail := p.tailMass(i)
			if j > i {
				tail = p.tailMass(j)
			}
			c += tail * p.Length[i] * p.Length[j] * math.Sin(q[i]-q[j]) * dq[j] * dq[j]
		}
		g := p.tailMass(i) * p.Gravity * p.Length[i] * math.Sin(q[i])

		tau := 0.0
		if i < len(u) {
			tau = u[i]
		}
		rhs[i] = tau - c - g - p.Damping*dq[i]
	}

	M := mat.NewDense(3, 3, mData[:])
	b := mat.NewVecDense(3, rhs[:])
	var ddq mat.VecDense
	if err := ddq.SolveVec(M, b); err != nil {
		// Singular mass matrix does not occur for nonzero link
		// lengths; keep the velocities and null acceleration.
		return dynamo.State{dq[0], dq[1], dq[2], 0, 0, 0}
	}

	return dynamo.State{dq[0], dq[1], dq[2], ddq.AtVec(0), ddq.AtVec(1), ddq.AtVec(2)}
}

// TipPosition is the world-frame position of the chain tip. The chain
// lives in the x-z plane; y is always zero.
func (p *TriplePendulum) TipPosition(q dynamo.State) [3]float64 {
	x, z := 0.0, p.BaseHeight
	for i := 0; i < 3; i++ {
		x += p.Length[i] * math.Sin(q[i])
		z -= p.Length[i] * math.Cos(q[i])
	}
	return [3]float64{x, 0, z}
}

// GravityTorque is the torque holding the chain still at configuration q.
func (p *TriplePendulum) GravityTorque(q dynamo.State) dynamo.Control {
	u := make(dynamo.Control, 3)
	for i := 0; i < 3; i++ {
		u[i] = p.tailMass(i) * p.Gravity * p.Length[i] * math.Sin(q[i])
	}
	return u
}

// NewTriplePendulumModel builds the constrained model around a default
// triple pendulum plant.
func NewTriplePendulumModel(p Params) *Model {
	plant := NewTriplePendulum()
	return newModel("triple_pendulum", plant, p, plant.TipPosition, plant.GravityTorque)
}
