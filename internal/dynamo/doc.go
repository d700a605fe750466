// Package dynamo provides core primitives for controlled dynamical systems.
//
// The package defines the fundamental types shared by the model, solver and
// controller packages:
//
//   - [State], [Control]: flat vectors for one time instant
//   - [Trajectory], [ControlSequence]: stage-indexed horizon sequences
//   - [System]: interface for controlled ODEs (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepping interface, with [RK4] as the
//     default fixed-step implementation
//
// # Thread Safety
//
// An [RK4] instance reuses internal scratch buffers and is NOT safe for
// concurrent use. Give each goroutine its own integrator.
package dynamo
