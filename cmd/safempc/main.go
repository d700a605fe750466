package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/MaxBertus/safe-mpc/internal/config"
	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/metrics"
	"github.com/MaxBertus/safe-mpc/internal/model"
	"github.com/MaxBertus/safe-mpc/internal/mpc"
	"github.com/MaxBertus/safe-mpc/internal/ocp"
	"github.com/MaxBertus/safe-mpc/internal/safety"
	"github.com/MaxBertus/safe-mpc/internal/sim"
	"github.com/MaxBertus/safe-mpc/internal/storage"
)

var (
	dataDir    string
	configFile string
	dt         float64
	duration   float64
	horizon    int
	alpha      float64
	artifact   string
	numRuns    int
	plotAxis   int
	q0         []float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "safempc",
		Short: "safety-filtered receding-horizon control",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".safempc", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")

	runCmd := &cobra.Command{
		Use:   "run [controller]",
		Short: "run a closed-loop session",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSession,
	}
	runCmd.Flags().Float64Var(&dt, "dt", 0, "timestep override")
	runCmd.Flags().Float64Var(&duration, "time", 0, "duration override")
	runCmd.Flags().IntVar(&horizon, "horizon", 0, "horizon override")
	runCmd.Flags().Float64Var(&alpha, "alpha", -1, "safety conservatism override")
	runCmd.Flags().StringVar(&artifact, "nn", "", "safety filter artifact path")
	runCmd.Flags().Float64SliceVar(&q0, "q0", nil, "initial joint configuration")

	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "generate warm starts for sampled initial conditions",
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&numRuns, "runs", 100, "number of initial conditions")
	batchCmd.Flags().StringVar(&artifact, "nn", "", "safety filter artifact path")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotAxis, "axis", 0, "state component to plot")

	rootCmd.AddCommand(runCmd, batchCmd, listCmd, plotCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.DefaultConfig(), nil
}

func applyOverrides(cfg *config.Config, args []string) {
	if len(args) > 0 {
		cfg.Controller = args[0]
	}
	if dt > 0 {
		cfg.Dt = dt
	}
	if duration > 0 {
		cfg.Duration = duration
	}
	if horizon > 0 {
		cfg.Horizon = horizon
	}
	if alpha >= 0 {
		cfg.Safety.Alpha = alpha
	}
	if artifact != "" {
		cfg.Safety.ArtifactPath = artifact
	}
}

func buildModel(cfg *config.Config) (*model.Model, error) {
	p := model.Params{
		QMin:      cfg.Bounds.QMin,
		QMax:      cfg.Bounds.QMax,
		DQMax:     cfg.Bounds.DQMax,
		UMax:      cfg.Bounds.UMax,
		BoundsTol: cfg.Tolerance.Bounds,
		SafetyTol: cfg.Tolerance.Safety,
		Alpha:     cfg.Safety.Alpha,
	}
	switch cfg.Model {
	case "triple_pendulum":
		return model.NewTriplePendulumModel(p), nil
	case "double_integrator":
		return model.NewDoubleIntegratorModel(p, 1), nil
	default:
		return nil, fmt.Errorf("unknown model %q", cfg.Model)
	}
}

func loadFilter(cfg *config.Config, m *model.Model) (*safety.Filter, error) {
	if cfg.Safety.ArtifactPath != "" {
		return safety.Load(cfg.Safety.ArtifactPath)
	}
	// Without trained weights, fall back to the deterministic synthetic
	// stand-in so the demo loop remains runnable.
	return safety.New(safety.SyntheticArtifact(m.NQ(), 32, 1))
}

func obstacleFromConfig(o config.ObstacleConfig) ocp.Obstacle {
	kind := ocp.FloorObstacle
	if o.Kind == "ball" {
		kind = ocp.BallObstacle
	}
	return ocp.Obstacle{Kind: kind, Lower: o.Lower, Upper: o.Upper, Position: o.Position}
}

func buildController(cfg *config.Config) (*mpc.Controller, *model.Model, error) {
	m, err := buildModel(cfg)
	if err != nil {
		return nil, nil, err
	}

	kind, ok := mpc.ParseKind(cfg.Controller)
	if !ok {
		return nil, nil, fmt.Errorf("unknown controller %q", cfg.Controller)
	}

	if kind != mpc.Naive {
		f, err := loadFilter(cfg, m)
		if err != nil {
			return nil, nil, err
		}
		if err := m.SetSafetyFilter(f); err != nil {
			return nil, nil, err
		}
	}

	b := ocp.NewBuilder(m)
	for _, o := range cfg.Obstacles {
		b.AddObstacle(obstacleFromConfig(o))
	}
	switch kind {
	case mpc.Receding:
		b.AddSafetyMargin(ocp.StageRunning|ocp.StageTerminal, 0)
	case mpc.SoftTerminal:
		b.AddSafetyMargin(ocp.StageTerminal, cfg.Safety.SlackWeight)
	}
	compiled, err := b.Compile()
	if err != nil {
		return nil, nil, err
	}

	solver := ocp.NewTrackingSolver(m, compiled, cfg.Horizon, cfg.Dt)
	ctrl, err := mpc.New(m, solver, compiled, mpc.Options{
		Kind:      kind,
		N:         cfg.Horizon,
		Dt:        cfg.Dt,
		Alpha:     cfg.Safety.Alpha,
		AlphaSafe: cfg.Safety.AlphaSafe,
	})
	if err != nil {
		return nil, nil, err
	}
	return ctrl, m, nil
}

func initialState(cfg *config.Config, m *model.Model) (dynamo.State, error) {
	x0 := make(dynamo.State, m.NX())
	if len(q0) == 0 {
		return x0, nil
	}
	if len(q0) != m.NQ() {
		return nil, fmt.Errorf("--q0 needs %d values, got %d", m.NQ(), len(q0))
	}
	copy(x0, q0)
	return x0, nil
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyOverrides(cfg, args)

	ctrl, m, err := buildController(cfg)
	if err != nil {
		return err
	}
	x0, err := initialState(cfg, m)
	if err != nil {
		return err
	}

	dyn := sim.NewDynamics(m, cfg.Dt, cfg.Tolerance.Rollout)
	runner := sim.NewRunner(ctrl, dyn)
	runner.AddMetric(metrics.NewSolveTime())
	runner.AddMetric(metrics.NewFailRate())
	runner.AddMetric(metrics.NewTorqueEffort())
	runner.AddMetric(metrics.NewBoundViolations(m))

	steps := int(cfg.Duration / cfg.Dt)
	result, err := runner.Run(context.Background(), x0, sim.Config{
		Steps:         steps,
		ValidateState: true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%s / %s: %d steps, %d solver failures\n",
		cfg.Model, cfg.Controller, result.StepsTaken, result.Fails)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for name, value := range result.Metrics {
		fmt.Fprintf(w, "  %s\t%.6f\n", name, value)
	}
	w.Flush()

	for _, e := range result.Errors {
		fmt.Println("warning:", e)
	}

	store := storage.New(dataDir)
	if err := store.Init(); err != nil {
		return err
	}
	runID, err := store.Save(cfg.Model, cfg.Controller, cfg.Dt, ctrl.Horizon(), cfg.Safety.Alpha, result)
	if err != nil {
		return err
	}
	fmt.Println("saved run", runID)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyOverrides(cfg, nil)

	// Obstacles only, compiled on a bare model: the pre-check gates the
	// sampled configurations before any controller is built.
	m, err := buildModel(cfg)
	if err != nil {
		return err
	}
	check := func(x dynamo.State) bool { return true }
	if len(cfg.Obstacles) > 0 {
		b := ocp.NewBuilder(m)
		for _, o := range cfg.Obstacles {
			b.AddObstacle(obstacleFromConfig(o))
		}
		compiled, err := b.Compile()
		if err != nil {
			return err
		}
		check = compiled.CheckCollision
	}

	factory := func() (*mpc.Controller, error) {
		ctrl, _, err := buildController(cfg)
		return ctrl, err
	}
	b := sim.NewBatch(m, factory, check)

	results, err := b.Generate(context.Background(), numRuns)
	if err != nil {
		return err
	}

	succ, skipped := 0, 0
	for _, ws := range results {
		if ws.OK {
			succ++
		}
		if ws.Skipped {
			skipped++
		}
	}
	fmt.Printf("warm starts: %d ok, %d failed, %d skipped (of %d)\n",
		succ, numRuns-succ-skipped, skipped, numRuns)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tCONTROLLER\tN\tALPHA\tFAILS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.0f\t%d\n",
			r.ID, r.Model, r.Controller, r.Horizon, r.Alpha, r.Fails)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}

	// Reading only the leading columns is enough for a single axis.
	states, _, err := store.LoadStates(args[0], plotAxis+1)
	if err != nil {
		return err
	}

	series := make([]float64, len(states))
	for i, x := range states {
		series[i] = x[plotAxis]
	}

	fmt.Printf("%s (x%d)\n", meta.ID, plotAxis)
	fmt.Println(asciigraph.Plot(series, asciigraph.Height(15), asciigraph.Width(72)))
	return nil
}
