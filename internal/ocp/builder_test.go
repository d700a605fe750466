package ocp

import (
	"testing"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
	"github.com/MaxBertus/safe-mpc/internal/safety"
)

func testModel(t *testing.T, withFilter bool) *model.Model {
	t.Helper()
	m := model.NewDoubleIntegratorModel(model.Params{
		QMin: -2, QMax: 2, DQMax: 3, UMax: 10,
		BoundsTol: 1e-4, SafetyTol: 1e-3, Alpha: 10,
	}, 1)
	if withFilter {
		f, err := safety.New(safety.SyntheticArtifact(1, 8, 3))
		if err != nil {
			t.Fatalf("building filter: %v", err)
		}
		if err := m.SetSafetyFilter(f); err != nil {
			t.Fatalf("attaching filter: %v", err)
		}
	}
	return m
}

func TestFloorObstacleMargin(t *testing.T) {
	m := testModel(t, false)
	compiled, err := NewBuilder(m).
		AddObstacle(Obstacle{Kind: FloorObstacle, Lower: 0.05, Upper: 1e6}).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	// Monitored point height is q[0] for the 1-dof integrator.
	if compiled.CheckCollision(dynamo.State{0.03, 0}) {
		t.Error("height 0.03 must violate the floor constraint")
	}
	if !compiled.CheckCollision(dynamo.State{0.10, 0}) {
		t.Error("height 0.10 must satisfy the floor constraint")
	}
}

func TestBallObstacle(t *testing.T) {
	m := testModel(t, false)
	compiled, err := NewBuilder(m).
		AddObstacle(Obstacle{
			Kind:     BallObstacle,
			Lower:    0.01, // squared clearance
			Upper:    1e6,
			Position: [3]float64{0, 0, 1.0},
		}).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if compiled.CheckCollision(dynamo.State{1.0, 0}) {
		t.Error("point at ball center must collide")
	}
	if !compiled.CheckCollision(dynamo.State{0.0, 0}) {
		t.Error("point 1m away must be clear")
	}
}

func TestCompileReplicatesAcrossStages(t *testing.T) {
	m := testModel(t, false)
	compiled, err := NewBuilder(m).
		AddObstacle(Obstacle{Kind: FloorObstacle, Lower: 0, Upper: 1}).
		AddObstacle(Obstacle{Kind: BallObstacle, Lower: 0.1, Upper: 1e6, Position: [3]float64{1, 0, 0}}).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	for name, set := range map[string][]StageConstraint{
		"initial": compiled.Initial, "running": compiled.Running, "terminal": compiled.Terminal,
	} {
		if len(set) != 2 {
			t.Fatalf("%s: expected 2 constraints, got %d", name, len(set))
		}
		for i, sc := range set {
			if sc.Index != i {
				t.Errorf("%s[%d]: recorded index %d", name, i, sc.Index)
			}
		}
		if set[0].Kind != ConstraintFloor || set[1].Kind != ConstraintBall {
			t.Errorf("%s: input order not preserved", name)
		}
	}
}

// Safety margin compiled into a subset of stage sets must not disturb the
// recorded slack indices of the other sets.
func TestSlackIndexAlignment(t *testing.T) {
	m := testModel(t, true)
	compiled, err := NewBuilder(m).
		AddObstacle(Obstacle{Kind: FloorObstacle, Lower: 0, Upper: 1e6}).
		AddSafetyMargin(StageTerminal, 50.0).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if len(compiled.Running) != 1 {
		t.Fatalf("running set should hold only the obstacle, got %d entries", len(compiled.Running))
	}
	if len(compiled.Terminal) != 2 {
		t.Fatalf("terminal set should hold obstacle + margin, got %d entries", len(compiled.Terminal))
	}
	margin := compiled.Terminal[1]
	if margin.Kind != ConstraintSafetyMargin || margin.Index != 1 {
		t.Errorf("terminal margin entry misindexed: kind=%v index=%d", margin.Kind, margin.Index)
	}

	w := SoftWeights(compiled.Terminal)
	if len(w) != 1 || w[0] != 50.0 {
		t.Errorf("soft weights misaligned: %v", w)
	}
	if len(SoftWeights(compiled.Running)) != 0 {
		t.Error("running set has no soft entries")
	}
}

func TestSafetyMarginRequiresFilter(t *testing.T) {
	m := testModel(t, false)
	_, err := NewBuilder(m).AddSafetyMargin(StageTerminal, 0).Compile()
	if err == nil {
		t.Fatal("expected ErrNoFilter")
	}
}

func TestTrackingSolverConverges(t *testing.T) {
	m := testModel(t, false)
	compiled, err := NewBuilder(m).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	s := NewTrackingSolver(m, compiled, 10, 0.01)
	s.Reset()
	s.SetInitialState(dynamo.State{0.5, 0})
	res := s.Solve()
	if res.Status != StatusSuccess {
		t.Fatalf("expected success, got status %d", res.Status)
	}
	if _, ok := res.Timings["time_tot"]; !ok {
		t.Error("missing time_tot timing")
	}

	// Stage values must be retrievable and dynamically plausible.
	x0 := s.Get(0, FieldState)
	if x0[0] != 0.5 {
		t.Errorf("stage 0 state not pinned to x0: %v", x0)
	}
	if u := s.Get(0, FieldControl); len(u) != 1 {
		t.Errorf("expected 1 control value, got %v", u)
	}
}

func TestTrackingSolverEnforcesRunningSafetyMargin(t *testing.T) {
	m := testModel(t, true)
	compiled, err := NewBuilder(m).AddSafetyMargin(StageRunning, 0).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	s := NewTrackingSolver(m, compiled, 10, 0.01)
	s.Reset()
	for i := 0; i <= 10; i++ {
		s.SetParam(i, 99)
	}
	// At alpha 99 the margin reduces to f/100 - ||v||, which a velocity of
	// 2.5 drives negative for any bounded network output.
	s.SetInitialState(dynamo.State{0, 2.5})
	if res := s.Solve(); res.Status != StatusSafety {
		t.Fatalf("expected StatusSafety, got %d", res.Status)
	}
}

func TestTrackingSolverChecksTerminalMarginAtStageAlpha(t *testing.T) {
	m := testModel(t, true)
	compiled, err := NewBuilder(m).AddSafetyMargin(StageTerminal, 0).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	s := NewTrackingSolver(m, compiled, 5, 0.01)
	s.Reset()
	s.SetParam(5, 99)
	s.SetInitialState(dynamo.State{0, 2.5})
	if res := s.Solve(); res.Status != StatusSafety {
		t.Fatalf("expected StatusSafety from terminal margin, got %d", res.Status)
	}
}

func TestTrackingSolverSoftMarginIsNotFeasibilityBreaking(t *testing.T) {
	m := testModel(t, true)
	compiled, err := NewBuilder(m).
		AddSafetyMargin(StageRunning|StageTerminal, 100.0).
		Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	s := NewTrackingSolver(m, compiled, 10, 0.01)
	s.Reset()
	for i := 0; i <= 10; i++ {
		s.SetParam(i, 99)
	}
	s.SetInitialState(dynamo.State{0, 2.5})
	if res := s.Solve(); res.Status != StatusSuccess {
		t.Fatalf("soft margin must not fail the solve, got status %d", res.Status)
	}
}

func TestTrackingSolverWeightsMapToGains(t *testing.T) {
	m := testModel(t, false)
	compiled, err := NewBuilder(m).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	s := NewTrackingSolver(m, compiled, 10, 0.01)
	s.SetWeights([]float64{50, 16}, []float64{2})
	if s.Kp != 25 || s.Kd != 8 {
		t.Errorf("gains = %v/%v, want 25/8", s.Kp, s.Kd)
	}

	// Degenerate weights leave the gains untouched.
	s.SetWeights([]float64{1, 1}, []float64{0})
	if s.Kp != 25 || s.Kd != 8 {
		t.Errorf("degenerate weights mutated gains: %v/%v", s.Kp, s.Kd)
	}
}

func TestTrackingSolverReportsBoundViolation(t *testing.T) {
	m := testModel(t, false)
	compiled, err := NewBuilder(m).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	s := NewTrackingSolver(m, compiled, 20, 0.05)
	s.Reset()
	// Start at the position bound with outward velocity at the velocity
	// limit: the clamped law cannot stop it inside the box immediately.
	s.SetInitialState(dynamo.State{2.0, 3.0})
	res := s.Solve()
	if res.Status == StatusSuccess {
		t.Fatal("expected a non-success status")
	}
}
