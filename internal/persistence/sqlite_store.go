package persistence

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/okanri/machina/pkg/api"
)

// SQLiteStore is a SnapshotStore backed by SQLite.
//
// It expects an *sql.DB using a SQLite driver (for example
// "modernc.org/sqlite"); the caller imports the driver:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS worker_states (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			worker_id TEXT NOT NULL,
			state_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			context BLOB,
			entered_at INTEGER NOT NULL,
			duration INTEGER NOT NULL,
			retry_count INTEGER NOT NULL,
			last_error TEXT
		);
		CREATE TABLE IF NOT EXISTS task_results (
			worker_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			status TEXT NOT NULL,
			output BLOB,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			usage BLOB,
			errors TEXT,
			PRIMARY KEY (worker_id, task_id)
		);`,
	)
	return err
}

func (s *SQLiteStore) SaveState(workerID string, st api.WorkerState) error {
	ctxBytes, err := EncodeValue(st.Context)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO worker_states (worker_id, state_id, name, type, context, entered_at, duration, retry_count, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workerID,
		st.ID,
		st.Name,
		string(st.Type),
		ctxBytes,
		st.EnteredAt.UnixNano(),
		int64(st.Duration),
		st.RetryCount,
		st.LastError,
	)
	return err
}

func (s *SQLiteStore) ListStates(workerID string, limit int) ([]api.WorkerState, error) {
	query := `
		SELECT state_id, name, type, context, entered_at, duration, retry_count, last_error
		FROM worker_states WHERE worker_id = ? ORDER BY seq`
	args := []any{workerID}
	if limit > 0 {
		// Keep the newest rows but return them oldest first.
		query = `SELECT * FROM (
			SELECT state_id, name, type, context, entered_at, duration, retry_count, last_error, seq
			FROM worker_states WHERE worker_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkerState
	for rows.Next() {
		var (
			st        api.WorkerState
			typ       string
			ctxBytes  []byte
			enteredAt int64
			duration  int64
			seq       int64
		)
		dest := []any{&st.ID, &st.Name, &typ, &ctxBytes, &enteredAt, &duration, &st.RetryCount, &st.LastError}
		if limit > 0 {
			dest = append(dest, &seq)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		st.Type = api.StateType(typ)
		st.EnteredAt = time.Unix(0, enteredAt)
		st.Duration = time.Duration(duration)

		decoded, err := DecodeValue(ctxBytes)
		if err != nil {
			return nil, err
		}
		if m, ok := decoded.(map[string]any); ok {
			st.Context = m
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveResult(workerID string, r *api.TaskResult) error {
	output, err := EncodeValue(r.Output)
	if err != nil {
		return err
	}
	usage, err := EncodeValue(map[string]float64(r.Usage))
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO task_results (worker_id, task_id, status, output, started_at, finished_at, usage, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (worker_id, task_id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			usage = excluded.usage,
			errors = excluded.errors`,
		workerID,
		r.TaskID,
		string(r.Status),
		output,
		r.StartedAt.UnixNano(),
		r.FinishedAt.UnixNano(),
		usage,
		strings.Join(r.Errors, "\n"),
	)
	return err
}

func (s *SQLiteStore) GetResult(workerID, taskID string) (*api.TaskResult, error) {
	row := s.db.QueryRow(`
		SELECT task_id, status, output, started_at, finished_at, usage, errors
		FROM task_results WHERE worker_id = ? AND task_id = ?`,
		workerID, taskID)
	r, err := scanResult(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListResults(workerID string) ([]*api.TaskResult, error) {
	rows, err := s.db.Query(`
		SELECT task_id, status, output, started_at, finished_at, usage, errors
		FROM task_results WHERE worker_id = ?`,
		workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.TaskResult
	for rows.Next() {
		r, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanResult(scan func(dest ...any) error) (*api.TaskResult, error) {
	var (
		r          api.TaskResult
		status     string
		output     []byte
		startedAt  int64
		finishedAt int64
		usage      []byte
		errorsStr  string
	)
	if err := scan(&r.TaskID, &status, &output, &startedAt, &finishedAt, &usage, &errorsStr); err != nil {
		return nil, err
	}
	r.Status = api.TaskStatus(status)
	r.StartedAt = time.Unix(0, startedAt)
	r.FinishedAt = time.Unix(0, finishedAt)

	decoded, err := DecodeValue(output)
	if err != nil {
		return nil, err
	}
	r.Output = decoded

	decodedUsage, err := DecodeValue(usage)
	if err != nil {
		return nil, err
	}
	if m, ok := decodedUsage.(map[string]float64); ok {
		r.Usage = api.ResourceUsage(m)
	}

	if errorsStr != "" {
		r.Errors = strings.Split(errorsStr, "\n")
	}
	return &r, nil
}
