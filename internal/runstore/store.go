package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"medcast/internal/config"
	"medcast/internal/run"
)

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the run database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "medcast.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Health verifies the database connection is usable.
func (s *Store) Health(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store is not open")
	}
	return s.db.PingContext(ctx)
}

// Handle exposes the database connection so sibling stores (the render
// queue) can share the same file.
func (s *Store) Handle() *sql.DB {
	return s.db
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new run record.
func (s *Store) Create(ctx context.Context, r *run.Run) error {
	if r == nil {
		return errors.New("run is nil")
	}
	if err := r.CheckInvariants(); err != nil {
		return err
	}
	refs, err := json.Marshal(r.DocumentRefs)
	if err != nil {
		return fmt.Errorf("marshal document refs: %w", err)
	}
	artifacts, err := json.Marshal(r.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	err = s.execWithRetry(
		ctx,
		`INSERT INTO runs (
            id, owner_id, title, parameters_json, document_refs_json, status,
            retrieval_index_id, retrieval_index_expires_at, artifacts_json,
            error_message, queue_position, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.OwnerID,
		nullableString(r.Title),
		nullableString(string(r.Parameters)),
		string(refs),
		string(r.Status),
		nullableString(r.RetrievalIndexID),
		nullableTime(r.RetrievalIndexExpiry),
		string(artifacts),
		nullableString(r.ErrorMessage),
		nullableInt(r.QueuePosition),
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID fetches a run by identifier. A missing run returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*run.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// Update persists changes to an existing run record.
func (s *Store) Update(ctx context.Context, r *run.Run) error {
	if r == nil {
		return errors.New("run is nil")
	}
	if err := r.CheckInvariants(); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	artifacts, err := json.Marshal(r.Artifacts)
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}

	err = s.execWithRetry(
		ctx,
		`UPDATE runs
         SET status = ?, retrieval_index_id = ?, retrieval_index_expires_at = ?,
             artifacts_json = ?, error_message = ?, queue_position = ?, updated_at = ?
         WHERE id = ?`,
		string(r.Status),
		nullableString(r.RetrievalIndexID),
		nullableTime(r.RetrievalIndexExpiry),
		string(artifacts),
		nullableString(r.ErrorMessage),
		nullableInt(r.QueuePosition),
		r.UpdatedAt.Format(time.RFC3339Nano),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// List returns runs filtered by status set (or all runs when no status is
// provided), oldest first.
func (s *Store) List(ctx context.Context, statuses ...run.Status) ([]*run.Run, error) {
	baseQuery := `SELECT ` + runColumns + ` FROM runs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = string(status)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListByOwner returns an owner's runs, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*run.Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+runColumns+` FROM runs WHERE owner_id = ? ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs by owner: %w", err)
	}
	defer rows.Close()

	var runs []*run.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats returns a count of runs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[run.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[run.Status]int)
	for rows.Next() {
		var status run.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// FailStuckProcessing marks runs still in processing as failed with the
// provided message. Used on daemon startup: an in-flight run cannot survive
// a process restart, and terminal states are never re-entered.
func (s *Store) FailStuckProcessing(ctx context.Context, message string) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		string(run.StatusFailed),
		message,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(run.StatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("fail stuck runs: %w", err)
	}
	return res.RowsAffected()
}

const runColumns = "id, owner_id, title, parameters_json, document_refs_json, status, retrieval_index_id, retrieval_index_expires_at, artifacts_json, error_message, queue_position, created_at, updated_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*run.Run, error) {
	var (
		id          string
		ownerID     string
		title       sql.NullString
		parameters  sql.NullString
		refsJSON    string
		statusStr   string
		indexID     sql.NullString
		indexExpiry sql.NullString
		artifacts   sql.NullString
		errMessage  sql.NullString
		queuePos    sql.NullInt64
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&title,
		&parameters,
		&refsJSON,
		&statusStr,
		&indexID,
		&indexExpiry,
		&artifacts,
		&errMessage,
		&queuePos,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	r := &run.Run{
		ID:               id,
		OwnerID:          ownerID,
		Title:            title.String,
		Status:           run.Status(statusStr),
		RetrievalIndexID: indexID.String,
		ErrorMessage:     errMessage.String,
	}
	if parameters.Valid {
		r.Parameters = json.RawMessage(parameters.String)
	}
	if refsJSON != "" {
		if err := json.Unmarshal([]byte(refsJSON), &r.DocumentRefs); err != nil {
			return nil, fmt.Errorf("unmarshal document refs: %w", err)
		}
	}
	if artifacts.Valid && artifacts.String != "" {
		if err := json.Unmarshal([]byte(artifacts.String), &r.Artifacts); err != nil {
			return nil, fmt.Errorf("unmarshal artifacts: %w", err)
		}
	}
	if queuePos.Valid {
		pos := int(queuePos.Int64)
		r.QueuePosition = &pos
	}
	if indexExpiry.Valid {
		if expiry, err := parseTimeString(indexExpiry.String); err == nil {
			r.RetrievalIndexExpiry = &expiry
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		r.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		r.UpdatedAt = updated
	}
	return r, nil
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
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

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
