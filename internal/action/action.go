// Package action provides the tagged representation of statechart actions:
// assign, raise, send, cancel, log, start, stop, invoke and pure custom
// actions, plus Unresolved, the placeholder for a string-named reference
// that a machine's action map does not contain. The lookup itself is done
// by the root package when it builds a machine. Stdlib-only; no dependency on the root
// package so it stays a leaf component (component B in the design).
package action

import "time"

// Kind tags the built-in action variants from spec §4.B.
type Kind string

const (
	Assign Kind = "assign"
	Raise  Kind = "raise"
	Send   Kind = "send"
	Cancel Kind = "cancel"
	Log    Kind = "log"
	Start  Kind = "start"
	Stop   Kind = "stop"
	Invoke Kind = "invoke"
	Pure   Kind = "pure"
)

// Event is the minimal event shape actions/guards operate over. The root
// package's Event type is an alias of this one.
type Event struct {
	Type string
	Data any
}

// Meta is passed to every executor so it can see which action/state it is
// running for, without the action model depending on the root package's
// richer Machine/State types.
type Meta struct {
	StateID    string
	ActionKind Kind
	ActionName string
}

// Effect performs a side effect given the current context and triggering
// event. For assign it returns the patched context, for log the value to
// log, and for a raise/send with a computed payload the event to enqueue;
// pure actions return the context unchanged.
type Effect func(ctx any, event Event, meta Meta) (any, error)

// DelayFunc computes a send delay from context and event (spec §3's
// "integer or expression over context").
type DelayFunc func(ctx any, event Event) time.Duration

// Action is the resolved, executable form of one action entry in a
// transition's or state's action list.
type Action struct {
	Kind Kind
	// Name is the string reference as written in the machine definition,
	// kept for introspection even when Resolved is true.
	Name string
	// Resolved is false when Name was a string reference that the
	// machine's action map didn't contain. Per spec §4.B/§7 this is never
	// fatal: Exec becomes a no-op and the action still surfaces in
	// State.Actions so callers can assert on it.
	Resolved bool

	EventType  string    // Raise/Send: event type to enqueue
	ID         string    // Cancel: id to cancel; Send: optional explicit id
	Delay      DelayFunc // Send: nil means immediate (internal/external queue)
	ActivityID string    // Start/Stop: activity identifier
	Exec       Effect    // Assign/Log/Pure/Invoke/Custom: the executable body
	ToParent   bool      // Send: route to the invoking parent instead of self (sendParent)
}

// Run executes the action's effect, tolerating a nil Exec (unresolved
// action or a built-in variant realized elsewhere, e.g. Start/Stop which
// the interpreter itself interprets).
func (a Action) Run(ctx any, event Event) (any, error) {
	if a.Exec == nil {
		return ctx, nil
	}
	return a.Exec(ctx, event, Meta{ActionKind: a.Kind, ActionName: a.Name})
}

// Unresolved builds a non-fatal placeholder action for a string reference
// that wasn't found in the machine's action map.
func Unresolved(kind Kind, name string) Action {
	return Action{Kind: kind, Name: name, Resolved: false}
}
