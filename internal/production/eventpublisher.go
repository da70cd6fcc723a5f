package production

import (
	"strings"
	"sync"

	"github.com/harelstate/statechart"
)

// PublishedEvent bundles an event with its machine metadata for publishing,
// matching the teacher's own PublishedEvent.
type PublishedEvent struct {
	Event    statechart.Event
	Metadata statechart.MachineMetadata
}

// doneRecallCap bounds how many done.state/done.invoke completions
// ChannelPublisher keeps around for RecentDone.
const doneRecallCap = 32

// ChannelPublisher is a stdlib-only EventPublisher that forwards events to
// a Go channel, non-blocking with drop on backpressure — the teacher's own
// ChannelPublisher, retargeted at statechart.Event/MachineMetadata. Unlike
// the teacher's version, it also retains a short rolling history of
// done.state/done.invoke completions: a forward-only channel silently
// misses any lifecycle completion that occurred before a subscriber
// connected, and those events don't repeat, so RecentDone gives a newly
// attached subscriber a way to catch up on what it missed.
type ChannelPublisher struct {
	ch chan<- PublishedEvent

	mu         sync.Mutex
	recentDone []PublishedEvent
}

// NewChannelPublisher creates a ChannelPublisher writing to ch.
func NewChannelPublisher(ch chan<- PublishedEvent) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(event statechart.Event, metadata statechart.MachineMetadata) error {
	if strings.HasPrefix(event.Type, "done.") {
		p.mu.Lock()
		p.recentDone = append(p.recentDone, PublishedEvent{Event: event, Metadata: metadata})
		if len(p.recentDone) > doneRecallCap {
			p.recentDone = p.recentDone[len(p.recentDone)-doneRecallCap:]
		}
		p.mu.Unlock()
	}

	select {
	case p.ch <- PublishedEvent{Event: event, Metadata: metadata}:
	default:
		// Non-blocking drop: a slow subscriber must not stall the
		// interpreter's own event loop.
	}
	return nil
}

// RecentDone returns the done.state/done.invoke completions published
// since construction (or since the rolling cap trimmed older ones),
// oldest first.
func (p *ChannelPublisher) RecentDone() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PublishedEvent, len(p.recentDone))
	copy(out, p.recentDone)
	return out
}

func (p *ChannelPublisher) Close() error {
	close(p.ch)
	return nil
}
