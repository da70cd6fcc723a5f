package production

import (
	"testing"
	"time"

	"github.com/harelstate/statechart"
)

func TestChannelPublisherDeliversEvent(t *testing.T) {
	ch := make(chan PublishedEvent, 1)
	p := NewChannelPublisher(ch)

	evt := statechart.NewEvent("TIMER", nil)
	meta := statechart.MachineMetadata{MachineID: "traffic", Transition: "red->green", Timestamp: time.Now()}

	if err := p.Publish(evt, meta); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Event.Type != "TIMER" || got.Metadata.MachineID != "traffic" {
			t.Errorf("got %+v", got)
		}
	default:
		t.Fatal("expected a published event on the channel")
	}
}

func TestChannelPublisherDropsOnBackpressure(t *testing.T) {
	ch := make(chan PublishedEvent) // unbuffered, nothing reading
	p := NewChannelPublisher(ch)

	err := p.Publish(statechart.NewEvent("TIMER", nil), statechart.MachineMetadata{})
	if err != nil {
		t.Errorf("Publish should drop silently under backpressure, got error: %v", err)
	}
}

func TestChannelPublisherRecentDoneTracksLifecycleCompletions(t *testing.T) {
	ch := make(chan PublishedEvent, 4)
	p := NewChannelPublisher(ch)

	_ = p.Publish(statechart.NewEvent("TIMER", nil), statechart.MachineMetadata{MachineID: "traffic"})
	_ = p.Publish(statechart.NewEvent("done.state.task.working", nil), statechart.MachineMetadata{MachineID: "task"})
	_ = p.Publish(statechart.NewEvent("done.invoke.child1", nil), statechart.MachineMetadata{MachineID: "owner"})

	recent := p.RecentDone()
	if len(recent) != 2 {
		t.Fatalf("expected only the two done.* events to be recalled, got %d: %+v", len(recent), recent)
	}
	if recent[0].Event.Type != "done.state.task.working" || recent[1].Event.Type != "done.invoke.child1" {
		t.Errorf("got %+v", recent)
	}
}

func TestChannelPublisherClose(t *testing.T) {
	ch := make(chan PublishedEvent, 1)
	p := NewChannelPublisher(ch)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, open := <-ch; open {
		t.Error("Close should close the underlying channel")
	}
}
