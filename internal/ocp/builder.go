package ocp

import (
	"errors"
	"fmt"
	"math"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/model"
)

var (
	// ErrNoFilter indicates a safety-margin entry on a model without an
	// attached viability filter.
	ErrNoFilter = errors.New("ocp: safety margin requested but model has no filter")
)

// ConstraintKind tags a compiled constraint entry.
type ConstraintKind int

const (
	ConstraintFloor ConstraintKind = iota
	ConstraintBall
	ConstraintSafetyMargin
)

// Stages is a bit mask selecting which stage sets an entry is compiled into.
type Stages uint8

const (
	StageInitial Stages = 1 << iota
	StageRunning
	StageTerminal

	AllStages = StageInitial | StageRunning | StageTerminal
)

// StageConstraint is one compiled scalar inequality Lower <= Eval(x) <= Upper.
// Index is the constraint's position within its stage set; soft-constraint
// slack weights align by this index, never by re-derived list lengths.
type StageConstraint struct {
	Kind        ConstraintKind
	Lower       float64
	Upper       float64
	Eval        func(x dynamo.State) float64
	Index       int
	Soft        bool
	SlackWeight float64
}

// Compiled holds the three stage-indexed constraint sets. Built once at
// controller construction; never mutated at runtime.
type Compiled struct {
	Initial  []StageConstraint
	Running  []StageConstraint
	Terminal []StageConstraint
}

type entry struct {
	kind        ConstraintKind
	obstacle    Obstacle
	stages      Stages
	soft        bool
	slackWeight float64
}

// Builder accumulates typed constraint entries and compiles them once into
// immutable stage sets.
type Builder struct {
	m       *model.Model
	entries []entry
}

func NewBuilder(m *model.Model) *Builder {
	return &Builder{m: m}
}

// AddObstacle appends a floor or ball obstacle, replicated across all three
// stage sets. Entries keep their input order.
func (b *Builder) AddObstacle(o Obstacle) *Builder {
	kind := ConstraintFloor
	if o.Kind == BallObstacle {
		kind = ConstraintBall
	}
	b.entries = append(b.entries, entry{kind: kind, obstacle: o, stages: AllStages})
	return b
}

// AddSafetyMargin appends the viability margin constraint to the selected
// stage sets. A zero slack weight makes it hard.
func (b *Builder) AddSafetyMargin(stages Stages, slackWeight float64) *Builder {
	b.entries = append(b.entries, entry{
		kind:        ConstraintSafetyMargin,
		stages:      stages,
		soft:        slackWeight > 0,
		slackWeight: slackWeight,
	})
	return b
}

// Compile resolves every entry into the three stage sets.
func (b *Builder) Compile() (*Compiled, error) {
	c := &Compiled{}
	for _, e := range b.entries {
		eval, lower, upper, err := b.resolve(e)
		if err != nil {
			return nil, err
		}
		add := func(set *[]StageConstraint) {
			*set = append(*set, StageConstraint{
				Kind:        e.kind,
				Lower:       lower,
				Upper:       upper,
				Eval:        eval,
				Index:       len(*set),
				Soft:        e.soft,
				SlackWeight: e.slackWeight,
			})
		}
		if e.stages&StageInitial != 0 {
			add(&c.Initial)
		}
		if e.stages&StageRunning != 0 {
			add(&c.Running)
		}
		if e.stages&StageTerminal != 0 {
			add(&c.Terminal)
		}
	}
	return c, nil
}

func (b *Builder) resolve(e entry) (func(dynamo.State) float64, float64, float64, error) {
	m := b.m
	nq := m.NQ()
	switch e.kind {
	case ConstraintFloor:
		o := e.obstacle
		return func(x dynamo.State) float64 {
			return m.ForwardKinematics(x[:nq])[2]
		}, o.Lower, o.Upper, nil
	case ConstraintBall:
		o := e.obstacle
		return func(x dynamo.State) float64 {
			p := m.ForwardKinematics(x[:nq])
			d := 0.0
			for i := 0; i < 3; i++ {
				diff := p[i] - o.Position[i]
				d += diff * diff
			}
			return d
		}, o.Lower, o.Upper, nil
	case ConstraintSafetyMargin:
		if !m.HasFilter() {
			return nil, 0, 0, ErrNoFilter
		}
		f := m.Filter()
		alpha := m.Alpha()
		return func(x dynamo.State) float64 {
			return f.Margin(x, alpha)
		}, 0, math.Inf(1), nil
	default:
		return nil, 0, 0, fmt.Errorf("ocp: unknown constraint kind %d", e.kind)
	}
}

// SoftWeights returns the slack weights of the soft constraints in a stage
// set, ordered by compiled index.
func SoftWeights(set []StageConstraint) []float64 {
	var w []float64
	for _, sc := range set {
		if sc.Soft {
			w = append(w, sc.SlackWeight)
		}
	}
	return w
}

// CheckCollision reports whether x satisfies every obstacle constraint of
// the running stage set. Safety-margin entries are not consulted; callers
// gate those through the model predicate.
func (c *Compiled) CheckCollision(x dynamo.State) bool {
	for _, sc := range c.Running {
		if sc.Kind == ConstraintSafetyMargin {
			continue
		}
		v := sc.Eval(x)
		if v < sc.Lower || v > sc.Upper {
			return false
		}
	}
	return true
}

// Satisfied reports whether x satisfies every constraint in the given stage
// set, including soft entries (a diagnostic, not a solver feasibility test).
func Satisfied(set []StageConstraint, x dynamo.State) bool {
	for _, sc := range set {
		v := sc.Eval(x)
		if v < sc.Lower || v > sc.Upper {
			return false
		}
	}
	return true
}
