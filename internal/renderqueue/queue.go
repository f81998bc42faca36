package renderqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EntryStatus represents the lifecycle of a queue entry.
type EntryStatus string

const (
	EntryWaiting    EntryStatus = "waiting"
	EntryProcessing EntryStatus = "processing"
	EntryDone       EntryStatus = "done"
)

// Entry is one persisted render queue row.
type Entry struct {
	RunID     string
	Position  int
	Status    EntryStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Queue manages the render waiting list. It shares the run database handle.
type Queue struct {
	db *sql.DB

	baselineWait time.Duration
	perJob       time.Duration
}

const schemaStatements = `
CREATE TABLE IF NOT EXISTS render_queue (
    run_id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_render_queue_status ON render_queue(status, position);
`

// New initializes the render queue schema over an existing database handle.
func New(db *sql.DB, baselineWait, perJob time.Duration) (*Queue, error) {
	if db == nil {
		return nil, errors.New("render queue requires a database handle")
	}
	if perJob <= 0 {
		return nil, errors.New("render queue requires a positive per-job duration")
	}
	if _, err := db.Exec(schemaStatements); err != nil {
		return nil, fmt.Errorf("init render queue schema: %w", err)
	}
	return &Queue{db: db, baselineWait: baselineWait, perJob: perJob}, nil
}

// Enqueue assigns the run the next position behind all waiting and
// in-progress entries and inserts it as waiting. The count and insert run in
// one write transaction, and the whole transaction retries on lock
// contention, so concurrent completions never observe the same count.
func (q *Queue) Enqueue(ctx context.Context, runID string) (int, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return 0, errors.New("run id is required")
	}

	var position int
	err := retryOnBusy(ctx, func() error {
		tx, err := q.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin enqueue: %w", err)
		}
		defer tx.Rollback()

		var active int
		row := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(1) FROM render_queue WHERE status IN (?, ?)`,
			string(EntryWaiting),
			string(EntryProcessing),
		)
		if err := row.Scan(&active); err != nil {
			return fmt.Errorf("count active entries: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO render_queue (run_id, position, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			runID,
			active+1,
			string(EntryWaiting),
			now,
			now,
		); err != nil {
			return fmt.Errorf("insert queue entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit enqueue: %w", err)
		}
		position = active + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// EstimateWait converts a queue position into a rough wait duration.
func (q *Queue) EstimateWait(position int) time.Duration {
	if position < 1 {
		position = 1
	}
	estimate := time.Duration(position) * q.perJob
	if estimate < q.baselineWait {
		return q.baselineWait
	}
	return estimate
}

// Depth returns the number of waiting and in-progress entries.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var depth int
	row := q.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM render_queue WHERE status IN (?, ?)`,
		string(EntryWaiting),
		string(EntryProcessing),
	)
	if err := row.Scan(&depth); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}

// Get fetches the entry for a run. A missing entry returns (nil, nil).
func (q *Queue) Get(ctx context.Context, runID string) (*Entry, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM render_queue WHERE run_id = ?`,
		runID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return entry, nil
}

// NextWaiting returns the lowest-position waiting entry, or nil when the
// queue is drained. The render worker consumes entries through this.
func (q *Queue) NextWaiting(ctx context.Context) (*Entry, error) {
	row := q.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM render_queue WHERE status = ? ORDER BY position LIMIT 1`,
		string(EntryWaiting),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next waiting entry: %w", err)
	}
	return entry, nil
}

// MarkProcessing moves a waiting entry to processing.
func (q *Queue) MarkProcessing(ctx context.Context, runID string) error {
	return q.transition(ctx, runID, EntryWaiting, EntryProcessing)
}

// MarkDone moves a processing entry to done.
func (q *Queue) MarkDone(ctx context.Context, runID string) error {
	return q.transition(ctx, runID, EntryProcessing, EntryDone)
}

func (q *Queue) transition(ctx context.Context, runID string, from, to EntryStatus) error {
	res, err := q.db.ExecContext(
		ctx,
		`UPDATE render_queue SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
		string(to),
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		string(from),
	)
	if err != nil {
		return fmt.Errorf("transition queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("queue entry %s is not %s", runID, from)
	}
	return nil
}

// Entries lists all queue entries ordered by position.
func (q *Queue) Entries(ctx context.Context, statuses ...EntryStatus) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM render_queue`
	var args []any
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, status := range statuses {
			marks[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ",") + `)`
	}
	query += ` ORDER BY position`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const entryColumns = "run_id, position, status, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		runID      string
		position   int
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&runID, &position, &statusStr, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	entry := &Entry{
		RunID:    runID,
		Position: position,
		Status:   EntryStatus(statusStr),
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

const (
	busyRetryAttempts       = 10
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
