package statechart

import (
	"strings"

	"github.com/harelstate/statechart/internal/action"
)

// Event is a typed occurrence delivered to a running interpreter, or
// examined by a guard/action during a transition. A bare string is
// shorthand for Event{Type: s}; ToEvent below performs that conversion.
type Event = action.Event

// NewEvent constructs an Event carrying a payload.
func NewEvent(eventType string, data any) Event {
	return Event{Type: eventType, Data: data}
}

// ToEvent normalizes the shorthand forms callers may pass to Send: a bare
// string or an existing Event. Any other value becomes the Data of an
// event with an empty Type.
func ToEvent(v any) Event {
	switch e := v.(type) {
	case Event:
		return e
	case string:
		return Event{Type: e}
	default:
		return Event{Type: "", Data: v}
	}
}

// emptyEvent is the transient/eventless event: transitions keyed on it are
// attempted whenever the interpreter settles, until none are enabled.
var emptyEvent = Event{Type: ""}

// IsEmptyEvent reports whether e is the transient (eventless) event.
func IsEmptyEvent(e Event) bool {
	return e.Type == ""
}

// InitEvent is delivered as the triggering event of the interpreter's first
// onTransition notification, per spec §4.D.
var InitEvent = Event{Type: "xstate.init"}

// reserved event-type prefixes (spec §6): hosts must not raise/send events
// whose type starts with these without the core machinery doing so itself.
const (
	internalPrefix = "xstate."
	donePrefix     = "done."
)

func doneStateEvent(stateID string) Event {
	return Event{Type: donePrefix + "state." + stateID}
}

func doneInvokeEvent(invokeID string, data any) Event {
	return Event{Type: donePrefix + "invoke." + invokeID, Data: data}
}

// isReserved reports whether an event type lies in a namespace the core
// machinery itself uses, for diagnostics only (never enforced against
// caller-raised events, since raising done.* internally also goes through
// this path).
func isReserved(eventType string) bool {
	return strings.HasPrefix(eventType, internalPrefix) || strings.HasPrefix(eventType, donePrefix)
}
