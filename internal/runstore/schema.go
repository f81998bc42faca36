package runstore

import (
	"context"
	"fmt"
)

const schemaStatements = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT,
    parameters_json TEXT,
    document_refs_json TEXT NOT NULL,
    status TEXT NOT NULL,
    retrieval_index_id TEXT,
    retrieval_index_expires_at TEXT,
    artifacts_json TEXT,
    error_message TEXT,
    queue_position INTEGER,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner_id, created_at);
`

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaStatements); err != nil {
		return fmt.Errorf("init runs schema: %w", err)
	}
	return nil
}
