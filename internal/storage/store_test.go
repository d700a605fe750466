package storage

import (
	"math"
	"testing"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/sim"
)

func sampleResult() *sim.Result {
	return &sim.Result{
		States: dynamo.Trajectory{
			{0.1, 0.2},
			{0.15, 0.18},
			{0.19, 0.15},
		},
		Controls: dynamo.ControlSequence{
			{1.0},
			{0.5},
		},
		Times:      []float64{0, 0.01, 0.02},
		Metrics:    map[string]float64{"fail_rate": 0.0, "torque_rms": 0.75},
		Fails:      0,
		StepsTaken: 2,
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	runID, err := store.Save("triple_pendulum", "receding", 0.01, 25, 10, sampleResult())
	if err != nil {
		t.Fatal(err)
	}

	meta, err := store.Load(runID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.ID != runID {
		t.Errorf("ID = %q, want %q", meta.ID, runID)
	}
	if meta.Model != "triple_pendulum" || meta.Controller != "receding" {
		t.Errorf("got %s/%s", meta.Model, meta.Controller)
	}
	if meta.Horizon != 25 || meta.Alpha != 10 {
		t.Errorf("horizon/alpha = %d/%v", meta.Horizon, meta.Alpha)
	}
	if meta.Metrics["torque_rms"] != 0.75 {
		t.Errorf("metrics not persisted: %v", meta.Metrics)
	}
}

func TestLoadStates(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	res := sampleResult()
	runID, err := store.Save("double_integrator", "naive", 0.01, 10, 0, res)
	if err != nil {
		t.Fatal(err)
	}

	states, times, err := store.LoadStates(runID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(states) != 3 || len(times) != 3 {
		t.Fatalf("got %d states, %d times", len(states), len(times))
	}
	for i := range states {
		for j := range states[i] {
			if math.Abs(states[i][j]-res.States[i][j]) > 1e-6 {
				t.Errorf("state[%d][%d] = %v, want %v", i, j, states[i][j], res.States[i][j])
			}
		}
		if math.Abs(times[i]-res.Times[i]) > 1e-6 {
			t.Errorf("time[%d] = %v, want %v", i, times[i], res.Times[i])
		}
	}
}

func TestList(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty store, got %d runs", len(runs))
	}

	if _, err := store.Save("triple_pendulum", "soft_terminal", 0.01, 25, 10, sampleResult()); err != nil {
		t.Fatal(err)
	}

	runs, err = store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Controller != "soft_terminal" {
		t.Errorf("controller = %q", runs[0].Controller)
	}
}

func TestLoadMissingRun(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Load("no_such_run"); err == nil {
		t.Error("expected error for missing run")
	}
	if _, _, err := store.LoadStates("no_such_run", 2); err == nil {
		t.Error("expected error for missing states")
	}
}
