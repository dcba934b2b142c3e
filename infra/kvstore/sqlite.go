package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/fleetdispatch/core/store"
)

// SQLitePersister keeps the latest snapshot in a SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

// NewSQLitePersister opens or creates the database and ensures schema.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	schema := `CREATE TABLE IF NOT EXISTS fleet_snapshot (
        id INTEGER PRIMARY KEY CHECK (id = 1),
        version INTEGER NOT NULL,
        saved_at INTEGER NOT NULL,
        data TEXT NOT NULL
    );`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLitePersister{db: db}, nil
}

// Save replaces the stored snapshot.
func (s *SQLitePersister) Save(ctx context.Context, d store.Data) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO fleet_snapshot (id, version, saved_at, data)
        VALUES (1, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            version = excluded.version,
            saved_at = excluded.saved_at,
            data = excluded.data`,
		d.Version, time.Now().UnixNano(), string(b))
	return err
}

// Load returns the stored snapshot, false when none was saved.
func (s *SQLitePersister) Load(ctx context.Context) (store.Data, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM fleet_snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Data{}, false, nil
	}
	if err != nil {
		return store.Data{}, false, err
	}
	var d store.Data
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return store.Data{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return d, true, nil
}

// Close closes the underlying database.
func (s *SQLitePersister) Close() error { return s.db.Close() }
