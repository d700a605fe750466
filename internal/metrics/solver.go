package metrics

import "github.com/MaxBertus/safe-mpc/internal/dynamo"

// SolveTime averages the solver's total wall-clock time over a run, in
// seconds. It reads the "time_tot" scalar of the tick timings.
type SolveTime struct {
	name    string
	sum     float64
	samples int
}

func NewSolveTime() *SolveTime {
	return &SolveTime{name: "solve_time"}
}

func (s *SolveTime) Name() string { return s.name }
func (s *SolveTime) Observe(x dynamo.State, u dynamo.Control, t float64) {}

func (s *SolveTime) ObserveTick(status int, timings map[string]float64) {
	s.sum += timings["time_tot"]
	s.samples++
}

func (s *SolveTime) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return s.sum / float64(s.samples)
}

func (s *SolveTime) Reset() {
	s.sum = 0
	s.samples = 0
}

// FailRate is the fraction of ticks whose solve did not converge.
type FailRate struct {
	name    string
	fails   int
	samples int
}

func NewFailRate() *FailRate {
	return &FailRate{name: "fail_rate"}
}

func (f *FailRate) Name() string { return f.name }
func (f *FailRate) Observe(x dynamo.State, u dynamo.Control, t float64) {}

func (f *FailRate) ObserveTick(status int, timings map[string]float64) {
	if status != 0 {
		f.fails++
	}
	f.samples++
}

func (f *FailRate) Value() float64 {
	if f.samples == 0 {
		return 0
	}
	return float64(f.fails) / float64(f.samples)
}

func (f *FailRate) Reset() {
	f.fails = 0
	f.samples = 0
}
