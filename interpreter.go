package statechart

import (
	"fmt"
	"sync"

	"github.com/harelstate/statechart/internal/action"
)

// Status is the Interpreter's own lifecycle state, distinct from the
// machine's configuration (spec §4.D).
type Status int

const (
	NotStarted Status = iota
	Running
	Stopped
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Interpreter drives a Machine: it owns the current State, the run-to-
// completion event loop, delayed-event scheduling via a Clock, activity
// and invoked-child lifecycle, and listener notification. Everything here
// is side-effecting; the pure step computation is Machine.Transition.
type Interpreter struct {
	mu sync.Mutex

	machine *Machine
	state   *State
	status  Status

	clock   Clock
	logger  Logger
	execute bool // false: caller must call Execute(state) manually (spec §4.D)

	activityFactories map[string]ActivityFactory
	activities        map[string]runningActivity

	timers map[string]Handle

	internalQueue []Event

	transitionListeners []func(*State)
	doneListeners       []func(*State)

	children map[string]*Interpreter

	// set only on interpreters spawned via invoke (spec §4.E)
	parent        *Interpreter
	invokeID      string
	sourceStateID string
	autoForward   bool

	initialContext any

	// pendingParentSends accumulates sendParent/done.invoke events while
	// the mutex is held; Send/Start flush them to the parent after
	// unlocking, so a parent forwarding back into this same child can
	// never deadlock on its own mutex.
	pendingParentSends []Event

	// pendingInvokeStarts holds newly-constructed invoked children queued
	// by applyInvokeDiff while the mutex is held. Starting a child can run
	// entry actions that sendParent back into this very interpreter, so
	// Start/Send flush these after unlocking, for the same reason as
	// pendingParentSends.
	pendingInvokeStarts []*Interpreter
}

// Option configures an Interpreter at construction, mirroring the
// teacher's functional-options machine construction.
type Option func(*Interpreter)

// WithClock supplies the delayed-event scheduler. Defaults to RealClock;
// tests substitute SimulatedClock for deterministic delayed-event
// scenarios (spec §5).
func WithClock(c Clock) Option {
	return func(it *Interpreter) { it.clock = c }
}

// WithLogger supplies the Logger that `log` actions write through.
func WithLogger(l Logger) Option {
	return func(it *Interpreter) { it.logger = l }
}

// WithManualExecution disables automatic action execution on each step:
// Start still computes the initial State, but the caller must call
// Execute(state) themselves to run its actions (spec §4.D "execute:
// false").
func WithManualExecution() Option {
	return func(it *Interpreter) { it.execute = false }
}

// WithActivity registers the factory that realizes a declared activity id
// into a running side-effect.
func WithActivity(id string, factory ActivityFactory) Option {
	return func(it *Interpreter) { it.activityFactories[id] = factory }
}

// WithInitialContext overrides the machine's default (empty Context)
// initial context, used by invoked children seeded from their parent's Data
// function.
func WithInitialContext(ctx any) Option {
	return func(it *Interpreter) { it.initialContext = ctx }
}

// NewInterpreter constructs an Interpreter for m, NotStarted until Start is
// called.
func NewInterpreter(m *Machine, opts ...Option) *Interpreter {
	it := &Interpreter{
		machine:           m,
		status:            NotStarted,
		clock:             NewRealClock(),
		logger:            NewStdLogger(nil),
		execute:           true,
		activityFactories: map[string]ActivityFactory{},
		activities:        map[string]runningActivity{},
		timers:            map[string]Handle{},
		children:          map[string]*Interpreter{},
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// OnTransition registers a listener invoked after every changed step.
func (it *Interpreter) OnTransition(fn func(*State)) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.transitionListeners = append(it.transitionListeners, fn)
}

// OnDone registers a listener invoked once, when the machine reaches a
// top-level final state.
func (it *Interpreter) OnDone(fn func(*State)) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.doneListeners = append(it.doneListeners, fn)
}

// State returns the interpreter's current snapshot. Safe to call
// concurrently with Send.
func (it *Interpreter) State() *State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// Status reports the interpreter's lifecycle state.
func (it *Interpreter) Status() Status {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.status
}

// Start computes the machine's initial configuration and, unless manual
// execution was requested, runs its entry actions, descends through any
// eventless transitions, and notifies listeners.
func (it *Interpreter) Start() error {
	it.mu.Lock()
	if it.status == Running {
		it.mu.Unlock()
		return nil
	}
	initial := it.machine.InitialState()
	if it.initialContext != nil {
		initial.Context = it.initialContext
	}
	it.status = Running
	it.state = initial

	var err error
	if it.execute {
		err = it.runActions(initial.Actions, initial.Event)
		if err == nil {
			it.applyInvokeDiff(nil, initial)
			it.internalQueue = append(it.internalQueue, initial.InternalRaises...)
			it.notifyTransition(initial)
			if initial.Done {
				it.notifyDone(initial)
			}
			err = it.settleTransient()
		}
	}
	pending := it.pendingParentSends
	it.pendingParentSends = nil
	starting := it.pendingInvokeStarts
	it.pendingInvokeStarts = nil
	it.mu.Unlock()
	it.flushInvokeStarts(starting)
	it.flushParentSends(pending)
	return err
}

func (it *Interpreter) flushParentSends(pending []Event) {
	if it.parent == nil {
		return
	}
	for _, evt := range pending {
		_ = it.parent.Send(evt)
	}
}

// flushInvokeStarts starts children queued by applyInvokeDiff, outside the
// owning interpreter's lock: Start runs entry actions, which may sendParent
// back into this same interpreter.
func (it *Interpreter) flushInvokeStarts(starting []*Interpreter) {
	for _, child := range starting {
		if err := child.Start(); err != nil {
			it.logger.Log(invokeStartFailure{id: child.invokeID, err: err})
		}
	}
}

// Execute manually runs the actions of a State produced out of band (e.g.
// from NextState), for hosts constructed WithManualExecution.
func (it *Interpreter) Execute(s *State) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.runActions(s.Actions, s.Event)
}

// Stop disposes every running activity and invoked child, then transitions
// to Stopped. Send after Stop returns ErrInterpreterNotStarted.
func (it *Interpreter) Stop() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.status != Running {
		return nil
	}
	for id, ra := range it.activities {
		ra.dispose()
		delete(it.activities, id)
	}
	for id, child := range it.children {
		_ = child.Stop()
		delete(it.children, id)
	}
	it.status = Stopped
	return nil
}

// NextState previews the result of delivering event without mutating the
// interpreter's state or running any actions (spec §4.D "nextState").
func (it *Interpreter) NextState(event any) (*State, error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.machine.Transition(it.state, ToEvent(event))
}

// Send delivers an external event and runs a full macrostep: the
// transition it causes, every event it or its actions raise internally,
// and every eventless transition that becomes enabled, before returning.
func (it *Interpreter) Send(event any) error {
	it.mu.Lock()
	if it.status != Running {
		it.mu.Unlock()
		return ErrInterpreterNotStarted
	}
	evt := ToEvent(event)
	err := it.microstep(evt)
	if err == nil {
		err = it.settleTransient()
	}
	var forwardTo []*Interpreter
	if err == nil {
		forwardTo = it.autoForwardTargets()
	}
	pending := it.pendingParentSends
	it.pendingParentSends = nil
	starting := it.pendingInvokeStarts
	it.pendingInvokeStarts = nil
	it.mu.Unlock()

	// Forwarding runs after unlocking: the forwarded child may itself
	// sendParent straight back into this interpreter's Send, which would
	// deadlock on our own mutex if it were still held.
	it.flushInvokeStarts(starting)
	for _, child := range forwardTo {
		_ = child.Send(evt)
	}
	it.flushParentSends(pending)
	return err
}

// settleTransient drains the internal (raised) queue and any resulting
// eventless transitions until the machine reaches a state with neither,
// completing the run-to-completion macrostep (spec §4.D).
func (it *Interpreter) settleTransient() error {
	for {
		for len(it.internalQueue) > 0 {
			next := it.internalQueue[0]
			it.internalQueue = it.internalQueue[1:]
			if err := it.microstep(next); err != nil {
				return err
			}
		}
		ran, err := it.tryEventless()
		if err != nil {
			return err
		}
		if ran {
			continue
		}
		return nil
	}
}

func (it *Interpreter) tryEventless() (bool, error) {
	next, err := it.machine.Transition(it.state, emptyEvent)
	if err != nil {
		return false, err
	}
	if !next.Changed {
		return false, nil
	}
	it.commit(next)
	return true, nil
}

func (it *Interpreter) microstep(evt Event) error {
	next, err := it.machine.Transition(it.state, evt)
	if err != nil {
		return err
	}
	it.commit(next)
	return nil
}

// commit installs next as the current state, diffing invoked children,
// running the step's actions (activity start/stop among them), and
// notifying listeners.
func (it *Interpreter) commit(next *State) {
	prev := it.state
	it.state = next
	it.applyInvokeDiff(prev, next)
	if it.execute {
		if err := it.runActions(next.Actions, next.Event); err != nil {
			it.logger.Log(fmt.Sprintf("action execution error: %v", err))
		}
	}
	// done.state.<id> events raised by this step's entries are queued for
	// the next settleTransient iteration, not delivered inline, so a
	// parent's done.state transition runs as its own microstep.
	it.internalQueue = append(it.internalQueue, next.InternalRaises...)
	if next.Changed {
		it.notifyTransition(next)
	}
	if next.Done && !prev.Done {
		it.notifyDone(next)
	}
}

func (it *Interpreter) notifyTransition(s *State) {
	for _, fn := range it.transitionListeners {
		fn(s)
	}
}

func (it *Interpreter) notifyDone(s *State) {
	for _, fn := range it.doneListeners {
		fn(s)
	}
	if it.parent != nil && it.invokeID != "" {
		it.pendingParentSends = append(it.pendingParentSends, doneInvokeEvent(it.invokeID, s.Context))
	}
}

// autoForwardTargets lists invoked children configured with autoForward
// (spec §4.E); the caller sends to them after releasing its own lock.
func (it *Interpreter) autoForwardTargets() []*Interpreter {
	var out []*Interpreter
	for _, child := range it.children {
		if child.autoForward {
			out = append(out, child)
		}
	}
	return out
}

// runActions executes a resolved action list in order: Assign has already
// been applied and stripped by Machine.Transition, so only Raise/Send/
// Cancel/Log/Pure/Start/Stop remain (spec §4.B).
func (it *Interpreter) runActions(acts []action.Action, triggeringEvt Event) error {
	for _, a := range acts {
		if err := it.runAction(a, triggeringEvt); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) runAction(a action.Action, triggeringEvt Event) error {
	ctx := it.currentContext()
	switch a.Kind {
	case action.Raise:
		evt, err := it.computeEvent(a, ctx, triggeringEvt)
		if err != nil {
			return err
		}
		it.internalQueue = append(it.internalQueue, evt)

	case action.Send:
		evt, err := it.computeEvent(a, ctx, triggeringEvt)
		if err != nil {
			return err
		}
		if a.ToParent {
			if it.parent != nil {
				it.pendingParentSends = append(it.pendingParentSends, evt)
			}
			return nil
		}
		if a.Delay == nil {
			it.internalQueue = append(it.internalQueue, evt)
			return nil
		}
		d := a.Delay(ctx, triggeringEvt)
		id := a.ID
		handle := it.clock.SetTimeout(func() {
			_ = it.Send(evt)
		}, d)
		if id != "" {
			it.timers[id] = handle
		}

	case action.Cancel:
		if handle, ok := it.timers[a.ID]; ok {
			it.clock.ClearTimeout(handle)
			delete(it.timers, a.ID)
		}

	case action.Log:
		v, err := a.Run(ctx, triggeringEvt)
		if err != nil {
			return &ActionExecutionError{ActionName: a.Name, Event: triggeringEvt, cause: err}
		}
		it.logger.Log(v)

	case action.Pure:
		if _, err := a.Run(ctx, triggeringEvt); err != nil {
			return &ActionExecutionError{ActionName: a.Name, Event: triggeringEvt, cause: err}
		}

	case action.Start:
		it.startActivity(a.ActivityID, ctx)

	case action.Stop:
		it.stopActivity(a.ActivityID)
	}
	return nil
}

func (it *Interpreter) computeEvent(a action.Action, ctx any, triggeringEvt Event) (Event, error) {
	if a.Exec != nil {
		v, err := a.Run(ctx, triggeringEvt)
		if err != nil {
			return Event{}, &ActionExecutionError{ActionName: a.Name, Event: triggeringEvt, cause: err}
		}
		return ToEvent(v), nil
	}
	return Event{Type: a.EventType}, nil
}

func (it *Interpreter) currentContext() any {
	if it.state == nil {
		return nil
	}
	return it.state.Context
}

func (it *Interpreter) startActivity(descriptor string, ctx any) {
	if _, running := it.activities[descriptor]; running {
		return
	}
	factory, ok := it.activityFactories[descriptor]
	if !ok {
		return
	}
	dispose := factory(ctx, descriptor)
	it.activities[descriptor] = runningActivity{descriptor: descriptor, dispose: dispose}
}

func (it *Interpreter) stopActivity(descriptor string) {
	ra, ok := it.activities[descriptor]
	if !ok {
		return
	}
	if ra.dispose != nil {
		ra.dispose()
	}
	delete(it.activities, descriptor)
}
