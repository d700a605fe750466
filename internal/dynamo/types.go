package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

type Control []float64

func (c Control) Clone() Control {
	out := make(Control, len(c))
	copy(out, c)
	return out
}

// Trajectory is an ordered sequence of states, one per horizon stage.
type Trajectory []State

func (tr Trajectory) Clone() Trajectory {
	out := make(Trajectory, len(tr))
	for i, x := range tr {
		out[i] = x.Clone()
	}
	return out
}

// Norm is the Frobenius norm of the stacked trajectory.
func (tr Trajectory) Norm() float64 {
	sum := 0.0
	for _, x := range tr {
		for _, v := range x {
			sum += v * v
		}
	}
	return math.Sqrt(sum)
}

// ControlSequence is an ordered sequence of controls, one per stage.
type ControlSequence []Control

func (cs ControlSequence) Clone() ControlSequence {
	out := make(ControlSequence, len(cs))
	for i, u := range cs {
		out[i] = u.Clone()
	}
	return out
}

// System is a controlled ODE dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}
