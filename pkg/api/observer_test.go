package api

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

type countingObserver struct {
	NoopObserver
	stateChanged int
	taskFailed   int
}

func (o *countingObserver) OnStateChanged(Event) { o.stateChanged++ }
func (o *countingObserver) OnTaskFailed(Event)   { o.taskFailed++ }

func TestDispatchRoutesByType(t *testing.T) {
	m := &BasicMetrics{}
	events := []EventType{
		EventStateChanged, EventStateChanged,
		EventTaskCompleted,
		EventTaskFailed,
		EventErrorState,
		EventResourceLimitExceeded,
		EventStateTimeout,
		EventMaxRetriesExceeded,
	}
	for _, typ := range events {
		Dispatch(m, Event{Type: typ})
	}

	snap := m.Snapshot()
	if snap.Transitions != 2 {
		t.Fatalf("transitions = %d, want 2", snap.Transitions)
	}
	if snap.TasksCompleted != 1 || snap.TasksFailed != 1 {
		t.Fatalf("tasks = %d/%d, want 1/1", snap.TasksCompleted, snap.TasksFailed)
	}
	if snap.ErrorStates != 1 || snap.ResourceLimitAlerts != 1 || snap.StateTimeouts != 1 || snap.MaxRetriesExceeded != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestCompositeObserverFansOut(t *testing.T) {
	a := &countingObserver{}
	b := &countingObserver{}
	c := NewCompositeObserver(a, nil, b)

	Dispatch(c, Event{Type: EventStateChanged})
	Dispatch(c, Event{Type: EventTaskFailed})

	if a.stateChanged != 1 || b.stateChanged != 1 {
		t.Fatalf("stateChanged = %d/%d, want 1/1", a.stateChanged, b.stateChanged)
	}
	if a.taskFailed != 1 || b.taskFailed != 1 {
		t.Fatalf("taskFailed = %d/%d, want 1/1", a.taskFailed, b.taskFailed)
	}
}

func TestCompositeObserverCollapses(t *testing.T) {
	if _, ok := NewCompositeObserver().(NoopObserver); !ok {
		t.Fatal("empty composite must collapse to NoopObserver")
	}
	single := &countingObserver{}
	if got := NewCompositeObserver(single, nil); got != Observer(single) {
		t.Fatal("single-observer composite must return the observer itself")
	}
}

func TestLoggingObserverOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := NewLoggingObserver(logger)

	Dispatch(obs, Event{
		Type:     EventStateChanged,
		WorkerID: "w1",
		From:     "idle",
		To:       "working",
		Trigger:  TriggerStartTask,
	})
	Dispatch(obs, Event{Type: EventTaskFailed, WorkerID: "w1", TaskID: "t9", Err: "boom"})

	out := buf.String()
	for _, want := range []string{"state_changed", "from=idle", "to=working", "task_failed", "t9", "boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMergeContext(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	patch := map[string]any{"b": 3, "c": 4}

	out := MergeContext(base, patch)
	if out["a"] != 1 || out["b"] != 3 || out["c"] != 4 {
		t.Fatalf("merged = %v", out)
	}
	if base["b"] != 2 {
		t.Fatal("MergeContext must not mutate its inputs")
	}

	copied := MergeContext(base, nil)
	copied["a"] = 99
	if base["a"] != 1 {
		t.Fatal("nil-patch merge must still copy base")
	}
}

func TestWorkerStateClone(t *testing.T) {
	s := WorkerState{Name: "idle", Context: map[string]any{"k": "v"}}
	c := s.Clone()
	c.Context["k"] = "mutated"
	if s.Context["k"] != "v" {
		t.Fatal("Clone must copy the context map")
	}
}
