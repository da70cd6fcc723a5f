// Package statechart implements the core of a statechart interpreter: a
// runtime for hierarchical, parallel finite-state machines following the
// semantics popularized by Harel statecharts and refined by SCXML.
//
// The package splits into two halves. The Machine/StateNode tree is an
// immutable description of a statechart, built once via NewMachine, and
// exposes a pure transition function: Machine.Transition(currentState,
// event) computes the next State with no side effects. The Interpreter
// layers a run-to-completion event loop, delayed-event scheduling, activity
// lifecycle, and observer notification on top of that pure function.
//
// The normalized active-configuration representation (StateValue/StateTree)
// and the tagged action model live in internal/statevalue and
// internal/action respectively; both are leaf packages with no dependency
// on Machine or Interpreter.
package statechart
