// Package safety wraps an offline-trained viability classifier into a
// differentiable margin function usable as an optimization constraint.
//
// The margin of a state x = [q, v] at conservatism level alpha is
//
//	h(x, alpha) = f((q-mean)/std, v/||v||) * (100-alpha)/100 - ||v||
//
// where f is the trained network. Subtracting the raw velocity norm makes
// the margin degrade to infeasible as speed grows regardless of the
// network's output scale, and the alpha scaling reuses one trained network
// at several conservatism levels without retraining.
package safety

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
)

// velEps guards the velocity normalization at rest.
const velEps = 1e-3

// Filter is the compiled form of a filter artifact. It is immutable and
// safe for concurrent use.
type Filter struct {
	weights []*mat.Dense
	biases  []*mat.VecDense
	mean    []float64
	std     []float64
	nq      int
}

// New compiles an artifact into an evaluable filter.
func New(a *Artifact) (*Filter, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}
	f := &Filter{
		mean: append([]float64(nil), a.Mean...),
		std:  append([]float64(nil), a.Std...),
		nq:   len(a.Mean),
	}
	for _, l := range a.Layers {
		rows := len(l.Weights)
		cols := len(l.Weights[0])
		w := mat.NewDense(rows, cols, nil)
		for r, row := range l.Weights {
			w.SetRow(r, row)
		}
		f.weights = append(f.weights, w)
		f.biases = append(f.biases, mat.NewVecDense(rows, append([]float64(nil), l.Bias...)))
	}
	return f, nil
}

// Load reads and compiles a filter artifact from disk.
func Load(path string) (*Filter, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return New(a)
}

// NQ returns the number of degrees of freedom the filter was trained on.
func (f *Filter) NQ() int { return f.nq }

// normalize maps a raw state onto the network input and returns the
// (guarded) velocity norm used for both scaling and the margin penalty.
func (f *Filter) normalize(x dynamo.State) (*mat.VecDense, float64) {
	nq := f.nq
	vn := 0.0
	for i := nq; i < 2*nq; i++ {
		vn += x[i] * x[i]
	}
	vn = math.Max(math.Sqrt(vn), velEps)

	in := mat.NewVecDense(2*nq, nil)
	for i := 0; i < nq; i++ {
		in.SetVec(i, (x[i]-f.mean[i])/f.std[i])
		in.SetVec(nq+i, x[nq+i]/vn)
	}
	return in, vn
}

// forward runs the network, recording pre-activation signs for backprop.
// Every layer, including the last, is followed by a ReLU.
func (f *Filter) forward(in *mat.VecDense) (float64, []*mat.VecDense) {
	acts := make([]*mat.VecDense, 0, len(f.weights))
	h := in
	for li, w := range f.weights {
		var z mat.VecDense
		z.MulVec(w, h)
		z.AddVec(&z, f.biases[li])
		for i := 0; i < z.Len(); i++ {
			if z.AtVec(i) < 0 {
				z.SetVec(i, 0)
			}
		}
		acts = append(acts, &z)
		h = &z
	}
	return h.AtVec(0), acts
}

// Margin evaluates h(x, alpha). Alpha is clamped into [0, 100].
func (f *Filter) Margin(x dynamo.State, alpha float64) float64 {
	if len(x) != 2*f.nq {
		panic(fmt.Sprintf("safety: state dim %d, filter expects %d", len(x), 2*f.nq))
	}
	alpha = math.Min(math.Max(alpha, 0), 100)

	in, vn := f.normalize(x)
	out, _ := f.forward(in)
	return out*(100-alpha)/100 - vn
}

// Gradient returns dh/dx at (x, alpha). The optimizer collaborator needs
// the margin with a defined gradient; this is the analytic reverse pass
// through the ReLU stack composed with the normalization map.
func (f *Filter) Gradient(x dynamo.State, alpha float64) dynamo.State {
	nq := f.nq
	if len(x) != 2*nq {
		panic(fmt.Sprintf("safety: state dim %d, filter expects %d", len(x), 2*nq))
	}
	alpha = math.Min(math.Max(alpha, 0), 100)
	scale := (100 - alpha) / 100

	in, vn := f.normalize(x)
	_, acts := f.forward(in)

	// Reverse pass: seed with d(out)/d(z_last) and walk the layers back,
	// masking where the ReLU clipped.
	grad := mat.NewVecDense(1, []float64{1})
	if acts[len(acts)-1].AtVec(0) <= 0 {
		grad.SetVec(0, 0)
	}
	for li := len(f.weights) - 1; li >= 0; li-- {
		var back mat.VecDense
		back.MulVec(f.weights[li].T(), grad)
		if li > 0 {
			prev := acts[li-1]
			for i := 0; i < back.Len(); i++ {
				if prev.AtVec(i) <= 0 {
					back.SetVec(i, 0)
				}
			}
		}
		grad = &back
	}

	// grad now holds d(out)/d(in). Chain through the normalization.
	out := make(dynamo.State, 2*nq)
	for i := 0; i < nq; i++ {
		out[i] = scale * grad.AtVec(i) / f.std[i]
	}

	clamped := vn <= velEps
	for j := 0; j < nq; j++ {
		vj := x[nq+j]
		g := scale * grad.AtVec(nq+j) / vn
		if !clamped {
			// d(v_i/vn)/dv_j cross terms plus the -vn penalty.
			dot := 0.0
			for i := 0; i < nq; i++ {
				dot += grad.AtVec(nq+i) * x[nq+i]
			}
			g -= scale * dot * vj / (vn * vn * vn)
			g -= vj / vn
		}
		out[nq+j] = g
	}
	return out
}
