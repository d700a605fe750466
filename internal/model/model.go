package model

import (
	"errors"
	"fmt"

	"github.com/MaxBertus/safe-mpc/internal/dynamo"
	"github.com/MaxBertus/safe-mpc/internal/safety"
)

// ErrFilterAttached indicates a second safety filter attachment attempt.
var ErrFilterAttached = errors.New("model: safety filter already attached")

// Params holds the scalar joint limits replicated across degrees of freedom,
// matching how manipulator limits are usually specified.
type Params struct {
	QMin, QMax float64 // joint position limits
	DQMax      float64 // symmetric joint velocity limit
	UMax       float64 // symmetric joint torque limit
	BoundsTol  float64 // tolerance for bound predicates
	SafetyTol  float64 // tolerance for the viability predicate
	Alpha      float64 // default safety conservatism in [0,100]
}

// Model couples a dynamical system with its box constraints, forward
// kinematics and an optionally attached viability filter. Immutable after
// construction except for the once-only filter attachment.
type Model struct {
	name string
	sys  dynamo.System

	nx, nu, nq, nv int

	xMin, xMax dynamo.State
	uMin, uMax dynamo.Control

	boundsTol float64
	safetyTol float64
	alpha     float64

	fk   func(q dynamo.State) [3]float64
	grav func(q dynamo.State) dynamo.Control

	filter *safety.Filter
}

func newModel(name string, sys dynamo.System, p Params,
	fk func(dynamo.State) [3]float64, grav func(dynamo.State) dynamo.Control) *Model {
	nx := sys.StateDim()
	nu := sys.ControlDim()
	nq := nx / 2

	m := &Model{
		name:      name,
		sys:       sys,
		nx:        nx,
		nu:        nu,
		nq:        nq,
		nv:        nx - nq,
		xMin:      make(dynamo.State, nx),
		xMax:      make(dynamo.State, nx),
		uMin:      make(dynamo.Control, nu),
		uMax:      make(dynamo.Control, nu),
		boundsTol: p.BoundsTol,
		safetyTol: p.SafetyTol,
		alpha:     p.Alpha,
		fk:        fk,
		grav:      grav,
	}

	for i := 0; i < nq; i++ {
		m.xMin[i] = p.QMin
		m.xMax[i] = p.QMax
		m.xMin[nq+i] = -p.DQMax
		m.xMax[nq+i] = p.DQMax
	}
	for i := 0; i < nu; i++ {
		m.uMin[i] = -p.UMax
		m.uMax[i] = p.UMax
	}
	return m
}

func (m *Model) Name() string          { return m.name }
func (m *Model) System() dynamo.System { return m.sys }
func (m *Model) NX() int               { return m.nx }
func (m *Model) NU() int               { return m.nu }
func (m *Model) NQ() int               { return m.nq }
func (m *Model) NV() int               { return m.nv }
func (m *Model) Alpha() float64        { return m.alpha }
func (m *Model) XMin() dynamo.State    { return m.xMin }
func (m *Model) XMax() dynamo.State    { return m.xMax }
func (m *Model) UMin() dynamo.Control  { return m.uMin }
func (m *Model) UMax() dynamo.Control  { return m.uMax }

// CheckStateConstraints reports whether every component of x lies within
// the state box, widened by the bounds tolerance.
func (m *Model) CheckStateConstraints(x dynamo.State) bool {
	for i := range x {
		if x[i] < m.xMin[i]-m.boundsTol || x[i] > m.xMax[i]+m.boundsTol {
			return false
		}
	}
	return true
}

// CheckControlConstraints reports whether every component of u lies within
// the control box, widened by the bounds tolerance.
func (m *Model) CheckControlConstraints(u dynamo.Control) bool {
	for i := range u {
		if u[i] < m.uMin[i]-m.boundsTol || u[i] > m.uMax[i]+m.boundsTol {
			return false
		}
	}
	return true
}

// CheckRunningConstraints is the conjunction of the state and control
// bound predicates.
func (m *Model) CheckRunningConstraints(x dynamo.State, u dynamo.Control) bool {
	return m.CheckStateConstraints(x) && m.CheckControlConstraints(u)
}

// CheckSafeConstraints evaluates the attached viability filter at the
// model's conservatism level. Calling it before SetSafetyFilter is a
// programmer error and panics.
func (m *Model) CheckSafeConstraints(x dynamo.State) bool {
	if m.filter == nil {
		panic("model: CheckSafeConstraints called before SetSafetyFilter")
	}
	return m.filter.Margin(x, m.alpha) >= -m.safetyTol
}

// SetSafetyFilter attaches the viability filter. The attachment is
// once-only; a second call returns ErrFilterAttached.
func (m *Model) SetSafetyFilter(f *safety.Filter) error {
	if m.filter != nil {
		return ErrFilterAttached
	}
	if f.NQ() != m.nq {
		return fmt.Errorf("model: filter trained for %d dof, model has %d", f.NQ(), m.nq)
	}
	m.filter = f
	return nil
}

// Filter returns the attached viability filter, or nil.
func (m *Model) Filter() *safety.Filter { return m.filter }

// HasFilter reports whether a viability filter has been attached.
func (m *Model) HasFilter() bool { return m.filter != nil }

// ForwardKinematics maps a joint configuration to the world-frame position
// of the monitored point.
func (m *Model) ForwardKinematics(q dynamo.State) [3]float64 {
	return m.fk(q)
}

// Gravity returns the torque compensating gravity at configuration q,
// used to seed warm starts.
func (m *Model) Gravity(q dynamo.State) dynamo.Control {
	if m.grav == nil {
		return make(dynamo.Control, m.nu)
	}
	return m.grav(q)
}
