package action

import (
	"errors"
	"testing"
)

func TestActionRunExecutesEffect(t *testing.T) {
	a := Action{
		Kind: Assign,
		Exec: func(ctx any, event Event, meta Meta) (any, error) {
			m := ctx.(map[string]int)
			next := make(map[string]int, len(m))
			for k, v := range m {
				next[k] = v
			}
			next["count"] = next["count"] + 1
			return next, nil
		},
	}
	out, err := a.Run(map[string]int{"count": 1}, Event{Type: "INC"})
	if err != nil {
		t.Fatal(err)
	}
	if out.(map[string]int)["count"] != 2 {
		t.Errorf("got %v, want count=2", out)
	}
}

func TestActionRunNilExecIsNoop(t *testing.T) {
	a := Action{Kind: Log}
	ctx := map[string]int{"x": 1}
	out, err := a.Run(ctx, Event{Type: "TICK"})
	if err != nil {
		t.Fatal(err)
	}
	got, ok := out.(map[string]int)
	if !ok || got["x"] != 1 {
		t.Errorf("expected ctx to pass through unchanged, got %v", out)
	}
}

func TestActionRunPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	a := Action{
		Kind: Pure,
		Exec: func(ctx any, event Event, meta Meta) (any, error) {
			return nil, wantErr
		},
	}
	_, err := a.Run(nil, Event{Type: "GO"})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestUnresolvedMarksActionUnresolved(t *testing.T) {
	a := Unresolved(Pure, "doSomething")
	if a.Resolved {
		t.Error("Unresolved should produce an unresolved action")
	}
	out, err := a.Run(42, Event{Type: "X"})
	if err != nil {
		t.Fatal(err)
	}
	if out != 42 {
		t.Errorf("unresolved action should pass context through untouched, got %v", out)
	}
}
