package metrics

import (
	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
)

// BoundViolations counts closed-loop steps whose state/control pair left
// the model's box constraints, as a fraction of all observed steps.
type BoundViolations struct {
	name       string
	m          *model.Model
	violations int
	samples    int
}

func NewBoundViolations(m *model.Model) *BoundViolations {
	return &BoundViolations{name: "bound_violations", m: m}
}

func (b *BoundViolations) Name() string { return b.name }

func (b *BoundViolations) Observe(x dynamo.State, u dynamo.Control, t float64) {
	b.samples++
	if !b.m.CheckRunningConstraints(x, u) {
		b.violations++
	}
}

func (b *BoundViolations) Value() float64 {
	if b.samples == 0 {
		return 0
	}
	return float64(b.violations) / float64(b.samples)
}

func (b *BoundViolations) Reset() {
	b.violations = 0
	b.samples = 0
}
