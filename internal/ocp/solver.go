package ocp

import "github.com/MaxBertus/safe-mpc/internal/dynamo"

// Guess fields accepted by Solver.SetGuess and Solver.Get.
const (
	FieldState   = "x"
	FieldControl = "u"
)

// Result is the outcome of one solver invocation. Status 0 means converged;
// any other value is a non-convergence recovered by the caller's fallback
// policy. Timings carries named wall-clock scalars.
type Result struct {
	Status  int
	Timings map[string]float64
}

// Solver is the external trajectory-optimizer collaborator. The controller
// drives it through stage-indexed setters; all warm starting is explicit,
// so Reset must clear any internal iterate memory. Implementations are
// owned by exactly one controller and are not safe for concurrent use.
type Solver interface {
	// Reset clears the internal iterate.
	Reset()

	// SetInitialState pins the stage-0 state equality constraint.
	SetInitialState(x0 dynamo.State)

	// SetGuess loads one stage of the primal initial iterate.
	// Stage N accepts only FieldState.
	SetGuess(stage int, field string, value []float64)

	// SetParam sets the stage's safety conservatism parameter.
	SetParam(stage int, alpha float64)

	// SetReference sets the tracking target for the cost.
	SetReference(xref dynamo.State)

	// SetWeights sets the diagonal state and control cost weights.
	SetWeights(q, r []float64)

	// SetHorizon re-derives stage timing for a new horizon length.
	SetHorizon(n int, dt float64)

	// Solve runs the optimizer to completion and blocks until it returns.
	Solve() Result

	// Get retrieves one stage value of the last solve, valid regardless
	// of the returned status.
	Get(stage int, field string) []float64
}
