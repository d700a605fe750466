package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
)

var (
	// ErrBadArtifact indicates a weight file whose layer shapes do not
	// chain, or whose normalization vectors are malformed.
	ErrBadArtifact = errors.New("safety: malformed filter artifact")
)

// Layer is one affine stage of the trained classifier.
type Layer struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// Artifact is the on-disk form of the offline-trained viability classifier:
// the network layers plus the per-joint normalization statistics.
type Artifact struct {
	Layers []Layer   `json:"layers"`
	Mean   []float64 `json:"mean"`
	Std    []float64 `json:"std"`
}

// LoadArtifact reads a filter artifact from a JSON file. The load is
// deterministic: the same file always yields the same filter.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safety: reading artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("safety: decoding artifact: %w", err)
	}
	return &a, nil
}

// Save writes the artifact as indented JSON.
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (a *Artifact) validate() error {
	if len(a.Layers) == 0 {
		return fmt.Errorf("%w: no layers", ErrBadArtifact)
	}
	nq := len(a.Mean)
	if nq == 0 || len(a.Std) != nq {
		return fmt.Errorf("%w: mean/std must be non-empty and equal length", ErrBadArtifact)
	}
	for i, s := range a.Std {
		if s <= 0 || math.IsNaN(s) {
			return fmt.Errorf("%w: std[%d] = %v", ErrBadArtifact, i, s)
		}
	}

	in := 2 * nq
	for li, l := range a.Layers {
		rows := len(l.Weights)
		if rows == 0 || len(l.Bias) != rows {
			return fmt.Errorf("%w: layer %d has %d rows, %d biases", ErrBadArtifact, li, rows, len(l.Bias))
		}
		for _, row := range l.Weights {
			if len(row) != in {
				return fmt.Errorf("%w: layer %d expects input %d, row has %d", ErrBadArtifact, li, in, len(row))
			}
		}
		in = rows
	}
	if in != 1 {
		return fmt.Errorf("%w: final layer must emit a scalar, emits %d", ErrBadArtifact, in)
	}
	return nil
}

// SyntheticArtifact builds a small deterministic stand-in network for demos
// and tests that run without the offline-trained weights. Its margin shrinks
// with distance from the mid-range configuration, which is qualitatively what
// a trained viability classifier produces.
func SyntheticArtifact(nq, hidden int, seed int64) *Artifact {
	rng := rand.New(rand.NewSource(seed))
	nx := 2 * nq

	randLayer := func(rows, cols int, scale float64) Layer {
		l := Layer{
			Weights: make([][]float64, rows),
			Bias:    make([]float64, rows),
		}
		for r := 0; r < rows; r++ {
			l.Weights[r] = make([]float64, cols)
			for c := 0; c < cols; c++ {
				l.Weights[r][c] = scale * (rng.Float64()*2 - 1)
			}
			l.Bias[r] = 0.5 * rng.Float64()
		}
		return l
	}

	a := &Artifact{
		Layers: []Layer{
			randLayer(hidden, nx, 1.0/math.Sqrt(float64(nx))),
			randLayer(hidden, hidden, 1.0/math.Sqrt(float64(hidden))),
			randLayer(1, hidden, 1.0/math.Sqrt(float64(hidden))),
		},
		Mean: make([]float64, nq),
		Std:  make([]float64, nq),
	}
	for i := 0; i < nq; i++ {
		a.Std[i] = 1.0
	}
	// Bias the output layer up so rest states sit inside the viable set.
	a.Layers[2].Bias[0] = 2.0
	return a
}
