package mpc

import (
	"fmt"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
)

// GuessState tracks the warm-start lifecycle.
type GuessState int

const (
	// GuessFresh: all-zero or externally seeded, before the first solve.
	GuessFresh GuessState = iota
	// GuessWarm: the last solve succeeded and was adopted.
	GuessWarm
	// GuessStale: the last solve failed; the guess is a shifted replay.
	GuessStale
)

func (s GuessState) String() string {
	switch s {
	case GuessFresh:
		return "fresh"
	case GuessWarm:
		return "warm"
	case GuessStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Guess holds the warm-start trajectories (N+1 states, N controls) and a
// temporary mirror pair captured from the last solve regardless of status.
type Guess struct {
	X dynamo.Trajectory
	U dynamo.ControlSequence

	TempX dynamo.Trajectory
	TempU dynamo.ControlSequence

	state GuessState
	nx    int
	nu    int
}

func NewGuess(n, nx, nu int) *Guess {
	g := &Guess{nx: nx, nu: nu}
	g.X = zeroTrajectory(n+1, nx)
	g.U = zeroControls(n, nu)
	g.TempX = zeroTrajectory(n+1, nx)
	g.TempU = zeroControls(n, nu)
	return g
}

func zeroTrajectory(n, dim int) dynamo.Trajectory {
	tr := make(dynamo.Trajectory, n)
	for i := range tr {
		tr[i] = make(dynamo.State, dim)
	}
	return tr
}

func zeroControls(n, dim int) dynamo.ControlSequence {
	cs := make(dynamo.ControlSequence, n)
	for i := range cs {
		cs[i] = make(dynamo.Control, dim)
	}
	return cs
}

func (g *Guess) State() GuessState { return g.state }

// Horizon returns the current number of control stages.
func (g *Guess) Horizon() int { return len(g.U) }

// Seed replaces the guess trajectories. Dimensions must match the horizon.
func (g *Guess) Seed(x dynamo.Trajectory, u dynamo.ControlSequence) error {
	if len(x) != len(g.X) || len(u) != len(g.U) {
		return fmt.Errorf("mpc: seed has %d+%d stages, guess holds %d+%d",
			len(x), len(u), len(g.X), len(g.U))
	}
	for i := range x {
		copy(g.X[i], x[i])
	}
	for i := range u {
		copy(g.U[i], u[i])
	}
	g.state = GuessFresh
	return nil
}

// Fill seeds every stage with the same state/control pair.
func (g *Guess) Fill(x dynamo.State, u dynamo.Control) {
	for i := range g.X {
		copy(g.X[i], x)
	}
	for i := range g.U {
		copy(g.U[i], u)
	}
	g.state = GuessFresh
}

// Adopt copies the temporary pair into the guess without shifting.
func (g *Guess) Adopt() {
	for i := range g.X {
		copy(g.X[i], g.TempX[i])
	}
	for i := range g.U {
		copy(g.U[i], g.TempU[i])
	}
	g.state = GuessWarm
}

// Advance applies the per-tick transition and returns stage 0 of the
// pre-shift trajectory that was kept. On success the solved trajectory is
// adopted and shifted; on failure the previous guess is shifted unchanged
// and the temporary pair is never consulted.
func (g *Guess) Advance(success bool) dynamo.Control {
	var u dynamo.Control
	if success {
		u = g.TempU[0].Clone()
		for i := range g.X {
			copy(g.X[i], g.TempX[i])
		}
		for i := range g.U {
			copy(g.U[i], g.TempU[i])
		}
		g.state = GuessWarm
	} else {
		u = g.U[0].Clone()
		g.state = GuessStale
	}
	g.shift()
	return u
}

// shift drops stage 0 and duplicates the final stage.
func (g *Guess) shift() {
	n := len(g.U)
	for i := 0; i < n; i++ {
		copy(g.X[i], g.X[i+1])
	}
	copy(g.X[n], g.X[n-1])
	for i := 0; i < n-1; i++ {
		copy(g.U[i], g.U[i+1])
	}
	if n >= 2 {
		copy(g.U[n-1], g.U[n-2])
	}
}

// Resize truncates or grows the buffers to a new horizon, duplicating the
// final stage on growth.
func (g *Guess) Resize(n int) {
	g.X = resizeTrajectory(g.X, n+1, g.nx)
	g.TempX = resizeTrajectory(g.TempX, n+1, g.nx)
	g.U = resizeControls(g.U, n, g.nu)
	g.TempU = resizeControls(g.TempU, n, g.nu)
}

func resizeTrajectory(tr dynamo.Trajectory, n, dim int) dynamo.Trajectory {
	if len(tr) == n {
		return tr
	}
	if len(tr) > n {
		return tr[:n]
	}
	last := tr[len(tr)-1]
	for len(tr) < n {
		tr = append(tr, append(make(dynamo.State, 0, dim), last...))
	}
	return tr
}

func resizeControls(cs dynamo.ControlSequence, n, dim int) dynamo.ControlSequence {
	if len(cs) == n {
		return cs
	}
	if len(cs) > n {
		return cs[:n]
	}
	last := cs[len(cs)-1]
	for len(cs) < n {
		cs = append(cs, append(make(dynamo.Control, 0, dim), last...))
	}
	return cs
}
