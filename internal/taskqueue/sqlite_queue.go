package taskqueue

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"errors"
	"time"

	"github.com/okanri/machina/pkg/api"
)

// Common payload containers. Domain-specific payload structs are
// registered by their own packages.
func init() {
	gob.Register(map[string]any{})
	gob.Register(map[string]float64{})
	gob.Register([]any{})
}

// SQLiteQueue is a persistent admission queue backed by SQLite, so that
// deferred tasks survive a process restart. Ordering uses a signed
// sequence column: front insertion takes min(seq)-1, back insertion
// takes max(seq)+1.
//
// It expects an *sql.DB using a SQLite driver (for example
// "modernc.org/sqlite"); the caller imports the driver.
type SQLiteQueue struct {
	db       *sql.DB
	workerID string
}

// NewSQLiteQueue initializes the queue table in the given DB and returns
// a queue scoped to workerID, so several machines can share one database.
func NewSQLiteQueue(db *sql.DB, workerID string) (*SQLiteQueue, error) {
	q := &SQLiteQueue{db: db, workerID: workerID}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS admission_queue (
			seq INTEGER NOT NULL,
			worker_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			priority TEXT NOT NULL,
			payload BLOB,
			created_at INTEGER NOT NULL,
			deadline INTEGER NOT NULL,
			PRIMARY KEY (worker_id, seq)
		);`,
	)
	return err
}

func (q *SQLiteQueue) PushBack(t api.TaskDefinition) error {
	return q.insert(t, `COALESCE(MAX(seq), 0) + 1`)
}

func (q *SQLiteQueue) PushFront(t api.TaskDefinition) error {
	return q.insert(t, `COALESCE(MIN(seq), 0) - 1`)
}

func (q *SQLiteQueue) insert(t api.TaskDefinition, seqExpr string) error {
	payload, err := encodePayload(t.Payload)
	if err != nil {
		return err
	}

	var deadline int64
	if !t.Deadline.IsZero() {
		deadline = t.Deadline.UnixNano()
	}

	// An aggregate select always yields exactly one row, so this works
	// on an empty queue too.
	_, err = q.db.Exec(`
		INSERT INTO admission_queue (seq, worker_id, task_id, task_type, priority, payload, created_at, deadline)
		SELECT `+seqExpr+`, ?, ?, ?, ?, ?, ?, ?
		FROM admission_queue WHERE worker_id = ?`,
		q.workerID,
		t.ID,
		t.Type,
		string(t.Priority),
		payload,
		t.CreatedAt.UnixNano(),
		deadline,
		q.workerID,
	)
	return err
}

func (q *SQLiteQueue) PopFront() (api.TaskDefinition, bool, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return api.TaskDefinition{}, false, err
	}

	var (
		seq       int64
		taskID    string
		taskType  string
		priority  string
		payload   []byte
		createdAt int64
		deadline  int64
	)

	row := tx.QueryRow(`
		SELECT seq, task_id, task_type, priority, payload, created_at, deadline
		FROM admission_queue
		WHERE worker_id = ?
		ORDER BY seq
		LIMIT 1`, q.workerID)
	err = row.Scan(&seq, &taskID, &taskType, &priority, &payload, &createdAt, &deadline)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return api.TaskDefinition{}, false, nil
		}
		return api.TaskDefinition{}, false, err
	}

	if _, err := tx.Exec(`DELETE FROM admission_queue WHERE worker_id = ? AND seq = ?`, q.workerID, seq); err != nil {
		_ = tx.Rollback()
		return api.TaskDefinition{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return api.TaskDefinition{}, false, err
	}

	decoded, err := decodePayload(payload)
	if err != nil {
		return api.TaskDefinition{}, false, err
	}

	t := api.TaskDefinition{
		ID:        taskID,
		Type:      taskType,
		Priority:  api.Priority(priority),
		Payload:   decoded,
		CreatedAt: time.Unix(0, createdAt),
	}
	if deadline != 0 {
		t.Deadline = time.Unix(0, deadline)
	}
	return t, true, nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM admission_queue WHERE worker_id = ?`, q.workerID).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}

// encodePayload serializes arbitrary Go values using encoding/gob.
// Callers must ensure values are gob-encodable and that their concrete
// types have been registered with gob.Register where needed.
func encodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	var iv = v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodePayload deserializes gob-encoded data back into an `any`.
func decodePayload(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	var iv any
	if err := dec.Decode(&iv); err != nil {
		return nil, err
	}
	return iv, nil
}
