package taskqueue

import (
	"database/sql"
	"encoding/gob"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okanri/machina/pkg/api"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func newTestSQLiteQueue(t *testing.T, db *sql.DB, workerID string) *SQLiteQueue {
	t.Helper()

	q, err := NewSQLiteQueue(db, workerID)
	if err != nil {
		t.Fatalf("NewSQLiteQueue failed: %v", err)
	}
	return q
}

func TestSQLiteQueueFIFO(t *testing.T) {
	q := newTestSQLiteQueue(t, newTestDB(t), "w1")

	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		task := api.TaskDefinition{ID: id, Type: "work", Priority: api.PriorityMedium, CreatedAt: now}
		if err := q.PushBack(task); err != nil {
			t.Fatalf("PushBack %s failed: %v", id, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.PopFront()
		if err != nil || !ok {
			t.Fatalf("PopFront failed: ok=%v err=%v", ok, err)
		}
		if got.ID != want || got.Type != "work" || got.Priority != api.PriorityMedium {
			t.Fatalf("PopFront = %+v, want id %q", got, want)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len after drain = %d, want 0", q.Len())
	}
}

func TestSQLiteQueuePushFrontJumpsTheLine(t *testing.T) {
	q := newTestSQLiteQueue(t, newTestDB(t), "w1")

	_ = q.PushBack(api.TaskDefinition{ID: "fresh-1", Type: "work", CreatedAt: time.Now()})
	_ = q.PushBack(api.TaskDefinition{ID: "fresh-2", Type: "work", CreatedAt: time.Now()})
	if err := q.PushFront(api.TaskDefinition{ID: "retried", Type: "work", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("PushFront failed: %v", err)
	}

	got, ok, err := q.PopFront()
	if err != nil || !ok {
		t.Fatalf("PopFront failed: ok=%v err=%v", ok, err)
	}
	if got.ID != "retried" {
		t.Fatalf("PopFront = %q, want the retried task first", got.ID)
	}
}

func TestSQLiteQueuePayloadRoundTrip(t *testing.T) {
	gob.Register(map[string]int{})
	q := newTestSQLiteQueue(t, newTestDB(t), "w1")

	deadline := time.Now().Add(time.Hour).Truncate(0)
	task := api.TaskDefinition{
		ID:        "with-payload",
		Type:      "work",
		Payload:   map[string]int{"replicas": 3},
		CreatedAt: time.Now().Truncate(0),
		Deadline:  deadline,
	}
	if err := q.PushBack(task); err != nil {
		t.Fatalf("PushBack failed: %v", err)
	}

	got, ok, err := q.PopFront()
	if err != nil || !ok {
		t.Fatalf("PopFront failed: ok=%v err=%v", ok, err)
	}
	payload, ok := got.Payload.(map[string]int)
	if !ok || payload["replicas"] != 3 {
		t.Fatalf("payload = %#v, want map with replicas 3", got.Payload)
	}
	if !got.Deadline.Equal(deadline) {
		t.Fatalf("deadline = %v, want %v", got.Deadline, deadline)
	}
}

func TestSQLiteQueueScopedByWorker(t *testing.T) {
	db := newTestDB(t)
	q1 := newTestSQLiteQueue(t, db, "w1")
	q2 := newTestSQLiteQueue(t, db, "w2")

	_ = q1.PushBack(api.TaskDefinition{ID: "for-w1", Type: "work", CreatedAt: time.Now()})

	if q2.Len() != 0 {
		t.Fatalf("w2 queue len = %d, want 0", q2.Len())
	}
	if _, ok, _ := q2.PopFront(); ok {
		t.Fatal("w2 must not see w1's tasks")
	}
	got, ok, err := q1.PopFront()
	if err != nil || !ok || got.ID != "for-w1" {
		t.Fatalf("w1 PopFront = %+v ok=%v err=%v", got, ok, err)
	}
}

func TestSQLiteQueueSurvivesReopen(t *testing.T) {
	db := newTestDB(t)
	q := newTestSQLiteQueue(t, db, "w1")

	_ = q.PushBack(api.TaskDefinition{ID: "durable", Type: "work", CreatedAt: time.Now()})

	// A new queue over the same handle sees the persisted row.
	q2 := newTestSQLiteQueue(t, db, "w1")
	if q2.Len() != 1 {
		t.Fatalf("reopened queue len = %d, want 1", q2.Len())
	}
	got, ok, err := q2.PopFront()
	if err != nil || !ok || got.ID != "durable" {
		t.Fatalf("reopened PopFront = %+v ok=%v err=%v", got, ok, err)
	}
}
