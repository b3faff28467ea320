package engine

import (
	"fmt"
	"testing"

	"github.com/okanri/machina/pkg/api"
)

func TestHistoryRingEvictsOldest(t *testing.T) {
	h := newHistoryRing(3)
	for i := 1; i <= 5; i++ {
		h.push(api.WorkerState{Name: fmt.Sprintf("s%d", i)})
	}

	if h.len() != 3 {
		t.Fatalf("len = %d, want 3", h.len())
	}
	snap := h.snapshot()
	want := []string{"s3", "s4", "s5"}
	for i, s := range snap {
		if s.Name != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, s.Name, want[i])
		}
	}
}

func TestHistoryRingSnapshotIsolatesContext(t *testing.T) {
	h := newHistoryRing(2)
	h.push(api.WorkerState{Name: "s1", Context: map[string]any{"k": "v"}})

	snap := h.snapshot()
	snap[0].Context["k"] = "mutated"

	again := h.snapshot()
	if again[0].Context["k"] != "v" {
		t.Fatal("snapshot must clone state contexts")
	}
}

func TestHistoryRingZeroCapacityUsesDefault(t *testing.T) {
	h := newHistoryRing(0)
	for i := 0; i < api.DefaultHistorySize+5; i++ {
		h.push(api.WorkerState{Name: fmt.Sprintf("s%d", i)})
	}
	if h.len() != api.DefaultHistorySize {
		t.Fatalf("len = %d, want %d", h.len(), api.DefaultHistorySize)
	}
}
