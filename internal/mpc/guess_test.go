package mpc

import (
	"testing"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
)

func rampGuess(n, nx, nu int) *Guess {
	g := NewGuess(n, nx, nu)
	for i := range g.X {
		g.X[i][0] = float64(i)
	}
	for i := range g.U {
		g.U[i][0] = 100 + float64(i)
	}
	return g
}

func TestGuessStartsFresh(t *testing.T) {
	g := NewGuess(3, 2, 1)
	if g.State() != GuessFresh {
		t.Errorf("new guess state %v", g.State())
	}
	if len(g.X) != 4 || len(g.U) != 3 {
		t.Errorf("shapes: %d states, %d controls", len(g.X), len(g.U))
	}
}

func TestSeedRejectsWrongHorizon(t *testing.T) {
	g := NewGuess(3, 2, 1)
	x := make(dynamo.Trajectory, 3) // needs 4
	u := make(dynamo.ControlSequence, 3)
	if err := g.Seed(x, u); err == nil {
		t.Error("expected dimension rejection")
	}
}

func TestAdvanceFailureKeepsTempOut(t *testing.T) {
	g := rampGuess(4, 2, 1)
	for i := range g.TempX {
		g.TempX[i][0] = -1
	}
	u := g.Advance(false)
	if u[0] != 100 {
		t.Errorf("action = %v, want pre-shift U[0]", u[0])
	}
	for i := range g.X {
		if g.X[i][0] < 0 {
			t.Fatal("temp values leaked into guess on failure")
		}
	}
}

func TestShiftSingleStageHorizon(t *testing.T) {
	g := rampGuess(1, 2, 1)
	u := g.Advance(false)
	if u[0] != 100 {
		t.Errorf("action = %v", u[0])
	}
	// X: [x1, x1]; U unchanged (single stage duplicates itself).
	if g.X[0][0] != 1 || g.X[1][0] != 1 {
		t.Errorf("shift wrong for N=1: %v %v", g.X[0][0], g.X[1][0])
	}
}

func TestResizeGrowDuplicatesLastStage(t *testing.T) {
	g := rampGuess(3, 2, 1)
	g.Resize(5)
	if len(g.X) != 6 || len(g.U) != 5 {
		t.Fatalf("grow shapes: %d/%d", len(g.X), len(g.U))
	}
	if g.X[5][0] != g.X[3][0] || g.U[4][0] != g.U[2][0] {
		t.Error("grown stages must duplicate the previous last stage")
	}

	g.Resize(2)
	if len(g.X) != 3 || len(g.U) != 2 {
		t.Fatalf("shrink shapes: %d/%d", len(g.X), len(g.U))
	}
	if g.X[0][0] != 0 {
		t.Error("shrink must keep the prefix")
	}
}
