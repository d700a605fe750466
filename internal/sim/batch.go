package sim

import (
	"context"
	"sync"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
	"github.com/MaxBertus/safe-mpc/internal/mpc"
)

// WarmStart is one generated initial condition with, when the bootstrap
// solve converged, its feasible guess trajectories.
type WarmStart struct {
	X0 dynamo.State
	X  dynamo.Trajectory
	U  dynamo.ControlSequence

	// OK is false when the sample was skipped (collision pre-check) or
	// the bootstrap solve failed.
	OK      bool
	Skipped bool
}

// Batch generates warm starts for many initial conditions in parallel.
// Each goroutine builds its own controller through the factory, so no
// solver or guess state is ever shared across runs.
type Batch struct {
	m       *model.Model
	factory func() (*mpc.Controller, error)
	check   func(dynamo.State) bool
}

// NewBatch builds a generator. check may be nil; otherwise it gates
// sampled states before any solve (e.g. an obstacle pre-check).
func NewBatch(m *model.Model, factory func() (*mpc.Controller, error), check func(dynamo.State) bool) *Batch {
	return &Batch{m: m, factory: factory, check: check}
}

// Generate samples `runs` initial configurations from a Halton sequence
// scaled into the interior of the position bounds, with zero velocity, and
// bootstraps a warm start for each.
func (b *Batch) Generate(ctx context.Context, runs int) ([]WarmStart, error) {
	results := make([]WarmStart, runs)
	errs := make([]error, runs)

	const eps = 1e-5
	nq := b.m.NQ()
	xMin, xMax := b.m.XMin(), b.m.XMax()

	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if ctx.Err() != nil {
				errs[idx] = ctx.Err()
				return
			}

			x0 := make(dynamo.State, b.m.NX())
			pt := haltonPoint(idx+1, nq)
			for j := 0; j < nq; j++ {
				lo, hi := xMin[j]+eps, xMax[j]-eps
				x0[j] = lo + pt[j]*(hi-lo)
			}
			results[idx].X0 = x0

			if b.check != nil && !b.check(x0) {
				results[idx].Skipped = true
				return
			}

			ctrl, err := b.factory()
			if err != nil {
				errs[idx] = err
				return
			}
			u0 := b.m.Gravity(x0[:nq])
			if !ctrl.Initialize(x0, u0) {
				return
			}
			g := ctrl.Guess()
			results[idx].X = g.X.Clone()
			results[idx].U = g.U.Clone()
			results[idx].OK = true
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// haltonBases are the first primes, one radical-inverse base per dof.
var haltonBases = []int{2, 3, 5, 7, 11, 13, 17, 19}

// haltonPoint returns the i-th point of the Halton sequence in [0,1)^dim.
func haltonPoint(i, dim int) []float64 {
	pt := make([]float64, dim)
	for d := 0; d < dim; d++ {
		base := haltonBases[d%len(haltonBases)]
		f := 1.0
		v := 0.0
		for n := i; n > 0; n /= base {
			f /= float64(base)
			v += f * float64(n%base)
		}
		pt[d] = v
	}
	return pt
}
