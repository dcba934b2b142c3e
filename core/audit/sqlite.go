package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// SQLiteSink persists entries to a SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens or creates the database at path and ensures schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS audit_log (
        row INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT NOT NULL UNIQUE,
        seq INTEGER NOT NULL,
        ts INTEGER NOT NULL,
        actor_id TEXT,
        action TEXT,
        entity_kind TEXT,
        entity_id TEXT,
        severity TEXT,
        entry TEXT NOT NULL
    );`
	for _, stmt := range []string{schema, `CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id)`} {
		if _, err := db.Exec(stmt); err != nil {
			if cerr := db.Close(); cerr != nil {
				return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
			}
			return nil, err
		}
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts the entries in one transaction. Entries are unique by id:
// a replayed batch is skipped, while entries of another chain that reuse
// sequence numbers are kept.
func (s *SQLiteSink) Write(ctx context.Context, entries []model.AuditEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO audit_log (seq, id, ts, actor_id, action, entity_kind, entity_id, severity, entry)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			e.Seq, e.ID, e.Timestamp.UnixNano(), e.ActorID, e.Action.String(), e.EntityKind.String(),
			e.EntityID, e.SeverityName(), string(b))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns entries matching q in insertion order.
func (s *SQLiteSink) Query(ctx context.Context, q Filter) ([]model.AuditEntry, error) {
	var args []any
	query := `SELECT entry FROM audit_log WHERE 1=1`
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.ActorID != "" {
		query += ` AND actor_id = ?`
		args = append(args, q.ActorID)
	}
	if q.Action != 0 {
		query += ` AND action = ?`
		args = append(args, q.Action.String())
	}
	if q.Kind != 0 {
		query += ` AND entity_kind = ?`
		args = append(args, q.Kind.String())
	}
	if q.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, q.EntityID)
	}
	if q.Severity != 0 {
		query += ` AND severity = ?`
		args = append(args, q.Severity.String())
	}
	query += ` ORDER BY row`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.AuditEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e model.AuditEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.limit(res), nil
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error { return s.db.Close() }
