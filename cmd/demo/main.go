// Command demo drives a traffic-light statechart on a real ticker,
// exercising the interpreter, the JSON persister, the channel-based event
// publisher, and the JSON visualizer together — the wiring the teacher's
// own cmd/demo exercises against internal/core.Machine, retargeted at this
// package's Interpreter.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harelstate/statechart"
	"github.com/harelstate/statechart/internal/production"
)

func trafficLight() statechart.MachineConfig {
	return statechart.MachineConfig{
		ID: "traffic-light",
		Root: &statechart.NodeConfig{
			Key: "traffic", Type: statechart.Compound, Initial: "red",
			Children: []*statechart.NodeConfig{
				{Key: "red", Type: statechart.Atomic, On: map[string][]statechart.TransitionConfig{
					"TIMER": {{Targets: []string{"green"}}},
				}},
				{Key: "green", Type: statechart.Atomic, On: map[string][]statechart.TransitionConfig{
					"TIMER": {{Targets: []string{"yellow"}}},
				}},
				{Key: "yellow", Type: statechart.Atomic, On: map[string][]statechart.TransitionConfig{
					"TIMER": {{Targets: []string{"red"}}},
				}},
			},
		},
	}
}

func main() {
	m, err := statechart.NewMachine(trafficLight(), statechart.Maps{})
	if err != nil {
		panic(err)
	}

	persister, err := production.NewJSONPersister(os.TempDir())
	if err != nil {
		panic(err)
	}
	registry := production.NewMemoryRegistry()

	publishChan := make(chan production.PublishedEvent, 100)
	publisher := production.NewChannelPublisher(publishChan)
	defer publisher.Close()

	var visualizer production.DefaultVisualizer

	it := statechart.NewInterpreter(m)
	it.OnTransition(func(s *statechart.State) {
		_ = publisher.Publish(s.Event, statechart.MachineMetadata{
			MachineID:  m.ID,
			Transition: s.Event.Type,
			Timestamp:  time.Now(),
		})
	})

	if err := it.Start(); err != nil {
		panic(err)
	}
	defer it.Stop()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	cycles := 0
	for {
		select {
		case <-ticker.C:
			if err := it.Send("TIMER"); err != nil {
				fmt.Printf("send error: %v\n", err)
			}
			cycles++
			fmt.Printf("\n--- Cycle %d ---\n", cycles)
			fmt.Println("current:", it.State().Leaves())

			snap, err := it.Snapshot()
			if err == nil {
				_ = persister.Save(snap)
				if _, err := registry.Register(m.ID, snap); err != nil {
					fmt.Printf("registry error: %v\n", err)
				}
			}

			if doc, err := visualizer.ExportJSON(m, it.State().Leaves()); err == nil {
				fmt.Println(string(doc))
			}

			select {
			case pub := <-publishChan:
				fmt.Printf("published: %s (%s)\n", pub.Metadata.Transition, pub.Event.Type)
			default:
			}

			if cycles >= 12 {
				fmt.Println("demo complete after 12 cycles.")
				return
			}
		case <-sig:
			fmt.Println("\nshutting down gracefully...")
			return
		}
	}
}
