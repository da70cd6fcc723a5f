package statechart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bulbMachine(t *testing.T) *Machine {
	t.Helper()
	cfg := MachineConfig{
		ID: "bulb",
		Root: &NodeConfig{
			Key: "bulb", Type: Compound, Initial: "off",
			Children: []*NodeConfig{
				{Key: "off", Type: Atomic, On: map[string][]TransitionConfig{
					"TOGGLE": {{Targets: []string{"on"}}},
				}},
				{Key: "on", Type: Atomic, On: map[string][]TransitionConfig{
					"TOGGLE": {{Targets: []string{"off"}}},
				}},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)
	return m
}

func TestInterpreterStartNotifiesTransitionOnce(t *testing.T) {
	it := NewInterpreter(bulbMachine(t))
	var seen []*State
	it.OnTransition(func(s *State) { seen = append(seen, s) })

	require.NoError(t, it.Start())
	assert.Equal(t, Running, it.Status())
	assert.True(t, it.State().Matches("bulb.off"))
	assert.Len(t, seen, 1, "Start should notify listeners exactly once for the initial state")
}

func TestInterpreterSendAdvancesAndNotifies(t *testing.T) {
	it := NewInterpreter(bulbMachine(t))
	var transitions int
	it.OnTransition(func(s *State) { transitions++ })
	require.NoError(t, it.Start())

	require.NoError(t, it.Send("TOGGLE"))
	assert.True(t, it.State().Matches("bulb.on"))

	require.NoError(t, it.Send(NewEvent("TOGGLE", nil)))
	assert.True(t, it.State().Matches("bulb.off"))

	assert.Equal(t, 3, transitions, "start + two sends")
}

func TestInterpreterSendBeforeStartErrors(t *testing.T) {
	it := NewInterpreter(bulbMachine(t))
	err := it.Send("TOGGLE")
	assert.ErrorIs(t, err, ErrInterpreterNotStarted)
}

func TestInterpreterStopDisposesActivities(t *testing.T) {
	disposed := false
	cfg := MachineConfig{
		ID: "lamp",
		Root: &NodeConfig{
			Key: "lamp", Type: Compound, Initial: "lit",
			Children: []*NodeConfig{
				{Key: "lit", Type: Atomic, Activities: []string{"glow"}},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)

	it := NewInterpreter(m, WithActivity("lamp.lit#glow", func(ctx any, descriptor string) Disposer {
		return func() { disposed = true }
	}))
	require.NoError(t, it.Start())
	assert.False(t, disposed, "activity should still be running while the state is active")

	require.NoError(t, it.Stop())
	assert.True(t, disposed, "Stop must dispose every running activity")
	assert.Equal(t, Stopped, it.Status())
}

func TestInterpreterActivityStopsOnExit(t *testing.T) {
	running := 0
	cfg := MachineConfig{
		ID: "fan",
		Root: &NodeConfig{
			Key: "fan", Type: Compound, Initial: "spinning",
			Children: []*NodeConfig{
				{Key: "spinning", Type: Atomic, Activities: []string{"spin"}, On: map[string][]TransitionConfig{
					"STOP": {{Targets: []string{"idle"}}},
				}},
				{Key: "idle", Type: Atomic},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)

	it := NewInterpreter(m, WithActivity("fan.spinning#spin", func(ctx any, descriptor string) Disposer {
		running++
		return func() { running-- }
	}))
	require.NoError(t, it.Start())
	assert.Equal(t, 1, running)

	require.NoError(t, it.Send("STOP"))
	assert.Equal(t, 0, running, "exiting the owning state must dispose its activity")
}

func TestInterpreterManualExecutionRequiresExplicitExecute(t *testing.T) {
	var logged []any
	cfg := MachineConfig{
		ID: "gate",
		Root: &NodeConfig{
			Key: "gate", Type: Compound, Initial: "closed",
			Children: []*NodeConfig{
				{Key: "closed", Type: Atomic, On: map[string][]TransitionConfig{
					"OPEN": {{Targets: []string{"open"}, Actions: []ActionSpec{
						Log(func(ctx any, event Event) any { return "opened" }),
					}}},
				}},
				{Key: "open", Type: Atomic},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)

	it := NewInterpreter(m, WithManualExecution(), WithLogger(loggerFunc(func(v any) { logged = append(logged, v) })))
	require.NoError(t, it.Start())
	assert.Empty(t, logged, "manual execution must not run actions automatically")

	next, err := it.NextState("OPEN")
	require.NoError(t, err)
	assert.True(t, next.Matches("gate.open"))
	assert.Empty(t, logged, "NextState previews without side effects")

	require.NoError(t, it.Execute(next))
	assert.Equal(t, []any{"opened"}, logged)
}

func TestInterpreterDelayedTransitionFiresOnSimulatedClock(t *testing.T) {
	cfg := MachineConfig{
		ID: "toast",
		Root: &NodeConfig{
			Key: "toast", Type: Compound, Initial: "toasting",
			Children: []*NodeConfig{
				{Key: "toasting", Type: Atomic, After: []AfterConfig{
					{Delay: 2 * time.Second, Transition: TransitionConfig{Targets: []string{"done"}}},
				}},
				{Key: "done", Type: Final},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)

	clock := NewSimulatedClock()
	it := NewInterpreter(m, WithClock(clock))
	require.NoError(t, it.Start())
	assert.True(t, it.State().Matches("toast.toasting"))

	clock.Increment(1 * time.Second)
	assert.True(t, it.State().Matches("toast.toasting"), "should not fire before its delay elapses")

	clock.Increment(1 * time.Second)
	assert.True(t, it.State().Matches("toast.done"))
	assert.True(t, it.State().Done)
}

func TestInterpreterCancelPreventsDelayedTransition(t *testing.T) {
	cfg := MachineConfig{
		ID: "toast",
		Root: &NodeConfig{
			Key: "toast", Type: Compound, Initial: "toasting",
			Children: []*NodeConfig{
				{Key: "toasting", Type: Atomic,
					After: []AfterConfig{
						{Delay: 2 * time.Second, Transition: TransitionConfig{Targets: []string{"done"}}},
					},
					On: map[string][]TransitionConfig{
						"POP": {{Targets: []string{"popped"}}},
					},
				},
				{Key: "popped", Type: Atomic},
				{Key: "done", Type: Atomic},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)

	clock := NewSimulatedClock()
	it := NewInterpreter(m, WithClock(clock))
	require.NoError(t, it.Start())

	require.NoError(t, it.Send("POP"))
	assert.True(t, it.State().Matches("toast.popped"))

	clock.Increment(5 * time.Second)
	assert.True(t, it.State().Matches("toast.popped"), "exiting the state must cancel its pending delayed send")
}

func TestInterpreterInvokeStartsStopsAndPropagatesDone(t *testing.T) {
	childCfg := MachineConfig{
		ID: "worker",
		Root: &NodeConfig{
			Key: "worker", Type: Compound, Initial: "working",
			Children: []*NodeConfig{
				{Key: "working", Type: Atomic, On: map[string][]TransitionConfig{
					"FINISH": {{Targets: []string{"done"}}},
				}},
				{Key: "done", Type: Final},
			},
		},
	}
	childMachine, err := NewMachine(childCfg, Maps{})
	require.NoError(t, err)

	parentCfg := MachineConfig{
		ID: "supervisor",
		Root: &NodeConfig{
			Key: "supervisor", Type: Compound, Initial: "busy",
			Children: []*NodeConfig{
				{Key: "busy", Type: Atomic,
					Invoke: &InvokeConfig{
						ID:          "worker1",
						Machine:     childMachine,
						AutoForward: true,
						OnDone:      &TransitionConfig{Targets: []string{"finished"}},
					},
				},
				{Key: "finished", Type: Final},
			},
		},
	}
	parentMachine, err := NewMachine(parentCfg, Maps{})
	require.NoError(t, err)

	it := NewInterpreter(parentMachine)
	require.NoError(t, it.Start())
	require.Len(t, it.children, 1, "entering the invoking state should start the child")

	require.NoError(t, it.Send("FINISH"))
	assert.True(t, it.State().Matches("supervisor.finished"), "done.invoke should propagate to the parent")
	assert.Empty(t, it.children, "a finished invoke's child interpreter should be removed")
}

func TestInterpreterSendParentReachesOwner(t *testing.T) {
	childCfg := MachineConfig{
		ID: "reporter",
		Root: &NodeConfig{
			Key: "reporter", Type: Compound, Initial: "idle",
			Children: []*NodeConfig{
				{Key: "idle", Type: Atomic, On: map[string][]TransitionConfig{
					"PING": {{Targets: nil, Actions: []ActionSpec{SendParent("PONG")}}},
				}},
			},
		},
	}
	childMachine, err := NewMachine(childCfg, Maps{})
	require.NoError(t, err)

	var pinged bool
	parentCfg := MachineConfig{
		ID: "owner",
		Root: &NodeConfig{
			Key: "owner", Type: Compound, Initial: "waiting",
			Children: []*NodeConfig{
				{Key: "waiting", Type: Atomic,
					Invoke: &InvokeConfig{ID: "child1", Machine: childMachine},
					On: map[string][]TransitionConfig{
						"PONG": {{Targets: nil, Actions: []ActionSpec{Pure(func(ctx any, event Event) { pinged = true })}}},
					},
				},
			},
		},
	}
	parentMachine, err := NewMachine(parentCfg, Maps{})
	require.NoError(t, err)

	it := NewInterpreter(parentMachine)
	require.NoError(t, it.Start())

	child := it.children["child1"]
	require.NotNil(t, child)
	require.NoError(t, child.Send("PING"))

	assert.True(t, pinged, "sendParent from the invoked child must reach the owning interpreter")
}

// Entering a nested Final child must raise done.state.<id> onto the
// interpreter's own internal queue and have it drained within the same
// Send call, letting a parent-level transition react in the same
// run-to-completion step (spec §4.D).
func TestInterpreterDrainsDoneStateEventAutomatically(t *testing.T) {
	cfg := MachineConfig{
		ID: "task",
		Root: &NodeConfig{
			Key: "task", Type: Compound, Initial: "working",
			Children: []*NodeConfig{
				{Key: "working", Type: Compound, Initial: "running", Children: []*NodeConfig{
					{Key: "running", Type: Atomic, On: map[string][]TransitionConfig{
						"FINISH": {{Targets: []string{"done"}}},
					}},
					{Key: "done", Type: Final},
				}},
				{Key: "archived", Type: Atomic},
			},
			On: map[string][]TransitionConfig{
				"done.state.task.working": {{Targets: []string{".archived"}}},
			},
		},
	}
	m, err := NewMachine(cfg, Maps{})
	require.NoError(t, err)

	it := NewInterpreter(m)
	require.NoError(t, it.Start())

	require.NoError(t, it.Send("FINISH"))
	assert.True(t, it.State().Matches("task.archived"),
		"the parent's done.state transition should have fired within the same Send call, leaves=%v", it.State().Leaves())
}

type loggerFunc func(v any)

func (f loggerFunc) Log(v any) { f(v) }
