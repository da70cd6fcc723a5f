package statechart

import (
	"time"

	"github.com/harelstate/statechart/internal/action"
)

// ActionSpec is the author-facing, pre-resolution shape of one action list
// entry (spec §4.B). A transition or state's entry/exit list is built from
// these; NewMachine resolves each into an internal/action.Action, looking
// up Name in the supplied Maps when Exec/Assign aren't given inline
// (spec: "Action resolution: when a transition carries a string name ...
// the interpreter looks up the implementation in the machine's actions
// option map. Unknown names produce an action with a null executor").
type ActionSpec struct {
	Kind action.Kind
	Name string

	EventType  string                                  // Raise/Send
	BuildEvent func(ctx any, event Event) Event         // Raise/Send: computed payload, overrides EventType
	ID         string                                  // Cancel target id; Send explicit scheduling id
	Delay      time.Duration                           // Send
	DelayFn    func(ctx any, event Event) time.Duration // Send: overrides Delay

	ActivityID string // Start/Stop
	ToParent   bool   // Send: route to the invoking parent (sendParent)

	Assign func(ctx any, event Event) any                            // Assign inline
	Exec   func(ctx any, event Event, meta action.Meta) (any, error) // Log/Pure inline
}

// Assign stages a context update, applied during the raise-phase of the
// step (spec §3 invariant 3, §4.C step 7) before any non-assign action
// executes.
func Assign(fn func(ctx any, event Event) any) ActionSpec {
	return ActionSpec{Kind: action.Assign, Assign: fn}
}

// AssignNamed resolves its implementation from Maps.Assigns at machine
// construction instead of taking one inline.
func AssignNamed(name string) ActionSpec {
	return ActionSpec{Kind: action.Assign, Name: name}
}

// Raise enqueues an event onto the internal queue, consumed before external
// events in the same macrostep.
func Raise(eventType string) ActionSpec {
	return ActionSpec{Kind: action.Raise, EventType: eventType}
}

// RaiseComputed enqueues an event built from the current context/event.
func RaiseComputed(build func(ctx any, event Event) Event) ActionSpec {
	return ActionSpec{Kind: action.Raise, BuildEvent: build}
}

// SendOption configures a Send action.
type SendOption func(*ActionSpec)

// WithDelay schedules the send via the interpreter's Clock instead of
// enqueuing immediately.
func WithDelay(d time.Duration) SendOption {
	return func(a *ActionSpec) { a.Delay = d }
}

// WithDelayFn computes the delay from context/event (spec §3: "delay
// (integer or expression over context)").
func WithDelayFn(fn func(ctx any, event Event) time.Duration) SendOption {
	return func(a *ActionSpec) { a.DelayFn = fn }
}

// WithSendID names the scheduled event so a later Cancel(id) can remove it;
// defaults to the event type when omitted (spec §4.D).
func WithSendID(id string) SendOption {
	return func(a *ActionSpec) { a.ID = id }
}

// Send enqueues an event, optionally delayed. Without a delay the event
// goes onto the interpreter's internal queue, the same queue Raise uses,
// and is processed within the current macrostep; there is no separate
// external queue. With a delay it is scheduled on the Clock and delivered
// through Interpreter.Send when it fires.
func Send(eventType string, opts ...SendOption) ActionSpec {
	a := ActionSpec{Kind: action.Send, EventType: eventType}
	for _, opt := range opts {
		opt(&a)
	}
	if a.ID == "" {
		a.ID = eventType
	}
	return a
}

// SendComputed enqueues a computed event, optionally delayed.
func SendComputed(id string, build func(ctx any, event Event) Event, opts ...SendOption) ActionSpec {
	a := ActionSpec{Kind: action.Send, BuildEvent: build, ID: id}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// SendParent enqueues an event on the invoking parent interpreter's queue
// instead of the child's own (spec §4.E "sendParent"). A no-op outside an
// invoked child.
func SendParent(eventType string, opts ...SendOption) ActionSpec {
	a := ActionSpec{Kind: action.Send, EventType: eventType, ToParent: true}
	for _, opt := range opts {
		opt(&a)
	}
	if a.ID == "" {
		a.ID = eventType
	}
	return a
}

// Cancel removes a previously scheduled delayed send by id. A no-op if the
// id has no pending entry.
func Cancel(id string) ActionSpec {
	return ActionSpec{Kind: action.Cancel, ID: id}
}

// Log emits fn's result through the interpreter's Logger.
func Log(fn func(ctx any, event Event) any) ActionSpec {
	return ActionSpec{Kind: action.Log, Exec: func(ctx any, event Event, _ action.Meta) (any, error) {
		return fn(ctx, event), nil
	}}
}

// LogNamed resolves its value function from Maps.Actions.
func LogNamed(name string) ActionSpec {
	return ActionSpec{Kind: action.Log, Name: name}
}

// StartActivity marks id as a long-running side effect that should start
// when the owning state is entered.
func StartActivity(id string) ActionSpec {
	return ActionSpec{Kind: action.Start, ActivityID: id}
}

// StopActivity stops a previously started activity.
func StopActivity(id string) ActionSpec {
	return ActionSpec{Kind: action.Stop, ActivityID: id}
}

// Pure runs an arbitrary side effect with no context mutation.
func Pure(fn func(ctx any, event Event)) ActionSpec {
	return ActionSpec{Kind: action.Pure, Exec: func(ctx any, event Event, _ action.Meta) (any, error) {
		fn(ctx, event)
		return ctx, nil
	}}
}

// PureNamed resolves its implementation from Maps.Actions.
func PureNamed(name string) ActionSpec {
	return ActionSpec{Kind: action.Pure, Name: name}
}

// Guard wraps an inline guard predicate.
type Guard = GuardFunc

// GuardRef is what a TransitionConfig.Cond carries before resolution:
// either a string name (looked up in Maps.Guards at machine construction)
// or an inline GuardFunc.
type GuardRef any
