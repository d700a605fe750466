package sim

import (
	"context"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
	"github.com/MaxBertus/safe-mpc/internal/mpc"
	"github.com/MaxBertus/safe-mpc/internal/ocp"
)

func integratorModel(t *testing.T) *model.Model {
	t.Helper()
	return model.NewDoubleIntegratorModel(model.Params{
		QMin: -2, QMax: 2, DQMax: 5, UMax: 10,
		BoundsTol: 1e-4, SafetyTol: 1e-3, Alpha: 10,
	}, 1)
}

func TestCheckDynamicsAcceptsConsistentRollout(t *testing.T) {
	m := integratorModel(t)
	dyn := NewDynamics(m, 0.05, 1e-3)

	// Integrate a constant control for 5 stages; the checker re-simulates
	// with the same integrator, so the deviation is exactly zero.
	const n = 5
	u := make(dynamo.ControlSequence, n)
	x := make(dynamo.Trajectory, n+1)
	x[0] = dynamo.State{0.3, 0}
	for i := 0; i < n; i++ {
		u[i] = dynamo.Control{0.8}
		x[i+1] = dyn.Simulate(x[i], u[i])
	}

	if !dyn.CheckDynamics(x, u) {
		t.Fatal("consistent trajectory rejected")
	}

	// A large perturbation of one stage's control must be caught.
	u[2] = dynamo.Control{9.0}
	if dyn.CheckDynamics(x, u) {
		t.Fatal("perturbed trajectory accepted")
	}
}

func TestCheckDynamicsShapeMismatch(t *testing.T) {
	m := integratorModel(t)
	dyn := NewDynamics(m, 0.05, 1e-3)
	x := make(dynamo.Trajectory, 3)
	u := make(dynamo.ControlSequence, 3) // needs len(x) == 4
	if dyn.CheckDynamics(x, u) {
		t.Fatal("mismatched shapes accepted")
	}
}

func buildController(t *testing.T, m *model.Model, n int, dt float64) *mpc.Controller {
	t.Helper()
	compiled, err := ocp.NewBuilder(m).Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	solver := ocp.NewTrackingSolver(m, compiled, n, dt)
	ctrl, err := mpc.New(m, solver, compiled, mpc.Options{
		Kind: mpc.Naive, N: n, Dt: dt, Alpha: 10,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return ctrl
}

func TestRunnerClosedLoop(t *testing.T) {
	g := NewWithT(t)
	m := integratorModel(t)
	const dt = 0.02
	ctrl := buildController(t, m, 10, dt)
	dyn := NewDynamics(m, dt, 1e-3)

	r := NewRunner(ctrl, dyn)

	result, err := r.Run(context.Background(), dynamo.State{0.8, 0}, Config{
		Steps:         200,
		ValidateState: true,
	})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(result.StepsTaken).To(Equal(200))
	g.Expect(result.States).To(HaveLen(201))
	g.Expect(result.Controls).To(HaveLen(200))
	g.Expect(result.Fails).To(BeZero())

	// The tracking loop regulates toward the origin.
	final := result.States[len(result.States)-1]
	g.Expect(final[0]).To(BeNumerically("~", 0, 0.05))
}

func TestRunnerRejectsBadConfig(t *testing.T) {
	m := integratorModel(t)
	ctrl := buildController(t, m, 5, 0.02)
	r := NewRunner(ctrl, NewDynamics(m, 0.02, 1e-3))
	if _, err := r.Run(context.Background(), dynamo.State{0, 0}, Config{Steps: 0}); err == nil {
		t.Fatal("expected config rejection")
	}
}

func TestRunnerContextCancellation(t *testing.T) {
	m := integratorModel(t)
	ctrl := buildController(t, m, 5, 0.02)
	r := NewRunner(ctrl, NewDynamics(m, 0.02, 1e-3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, dynamo.State{0, 0}, Config{Steps: 100})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestBatchGeneratesIndependentWarmStarts(t *testing.T) {
	g := NewWithT(t)
	m := integratorModel(t)
	const dt = 0.02

	factory := func() (*mpc.Controller, error) {
		compiled, err := ocp.NewBuilder(m).Compile()
		if err != nil {
			return nil, err
		}
		return mpc.New(m, ocp.NewTrackingSolver(m, compiled, 10, dt), compiled, mpc.Options{
			Kind: mpc.Naive, N: 10, Dt: dt, Alpha: 10,
		})
	}

	b := NewBatch(m, factory, nil)
	results, err := b.Generate(context.Background(), 16)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(results).To(HaveLen(16))

	succeeded := 0
	for _, ws := range results {
		if ws.OK {
			succeeded++
			g.Expect(ws.X).To(HaveLen(11))
			g.Expect(ws.U).To(HaveLen(10))
			g.Expect(ws.X[0][0]).To(BeNumerically("~", ws.X0[0], 1e-9))
		}
	}
	g.Expect(succeeded).To(BeNumerically(">", 0), "some bootstraps must converge")
}

func TestBatchCollisionPreCheckSkips(t *testing.T) {
	m := integratorModel(t)
	var factoryRan bool
	factory := func() (*mpc.Controller, error) {
		factoryRan = true
		return nil, nil
	}
	b := NewBatch(m, factory, func(dynamo.State) bool { return false })
	results, err := b.Generate(context.Background(), 4)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if factoryRan {
		t.Error("factory must not run for skipped samples")
	}
	for _, ws := range results {
		if !ws.Skipped || ws.OK {
			t.Fatal("all samples should be skipped")
		}
	}
}

func TestHaltonDeterministicAndInUnitCube(t *testing.T) {
	a := haltonPoint(7, 3)
	b := haltonPoint(7, 3)
	for d := range a {
		if a[d] != b[d] {
			t.Fatal("halton point not deterministic")
		}
		if a[d] < 0 || a[d] >= 1 {
			t.Fatalf("halton coordinate out of range: %v", a[d])
		}
	}
	// First base-2 values: 1/2, 1/4, 3/4 ...
	if haltonPoint(1, 1)[0] != 0.5 {
		t.Errorf("halton(1) = %v, want 0.5", haltonPoint(1, 1)[0])
	}
}
