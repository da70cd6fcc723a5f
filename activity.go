package statechart

// Disposer stops an activity. It is called on state exit or interpreter
// stop (spec §6).
type Disposer func()

// ActivityFactory realizes an activity descriptor into a running
// side-effect, returning its Disposer.
type ActivityFactory func(ctx any, descriptor string) Disposer

// runningActivity tracks one activity instance started for a currently
// active state, so the interpreter can dispose it on exit.
type runningActivity struct {
	stateID    string
	descriptor string
	dispose    Disposer
}
