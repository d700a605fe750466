package dynamo

import (
	"math"
	"testing"
)

type decay struct{}

func (decay) Derive(x State, u Control, t float64) State { return State{-x[0]} }
func (decay) StateDim() int                              { return 1 }
func (decay) ControlDim() int                            { return 0 }

type oscillator struct{}

func (oscillator) Derive(x State, u Control, t float64) State {
	return State{x[1], -x[0]}
}
func (oscillator) StateDim() int   { return 2 }
func (oscillator) ControlDim() int { return 0 }

func TestRK4ExponentialDecay(t *testing.T) {
	integ := NewRK4()
	x := State{1.0}
	dt := 0.01
	for i := 0; i < 100; i++ {
		x = integ.Step(decay{}, x, nil, float64(i)*dt, dt)
	}
	want := math.Exp(-1.0)
	if math.Abs(x[0]-want) > 1e-8 {
		t.Errorf("expected %.10f, got %.10f", want, x[0])
	}
}

func TestRK4HarmonicOscillatorEnergy(t *testing.T) {
	integ := NewRK4()
	x := State{1.0, 0.0}
	dt := 0.01
	for i := 0; i < 1000; i++ {
		x = integ.Step(oscillator{}, x, nil, float64(i)*dt, dt)
	}
	energy := x[0]*x[0] + x[1]*x[1]
	if math.Abs(energy-1.0) > 1e-6 {
		t.Errorf("energy drifted: %.10f", energy)
	}
}

func TestTrajectoryClone(t *testing.T) {
	tr := Trajectory{{1, 2}, {3, 4}}
	c := tr.Clone()
	c[0][0] = 99
	if tr[0][0] != 1 {
		t.Error("clone shares backing array")
	}
}

func TestStateIsValid(t *testing.T) {
	tests := []struct {
		name string
		x    State
		want bool
	}{
		{"finite", State{1, -2, 0}, true},
		{"nan", State{1, math.NaN()}, false},
		{"inf", State{math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
