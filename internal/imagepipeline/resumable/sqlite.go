package resumable

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// sqliteStore is the durable resumable-data store: one row per request URL,
// WAL mode for a read-heavy workload under concurrent sessions.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed Store at path.
func NewSQLiteStore(path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open resumable store: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping resumable store: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate resumable store: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS resumable_state (
		url              TEXT PRIMARY KEY,
		validator        TEXT NOT NULL,
		accumulated      BLOB NOT NULL,
		server_confirmed INTEGER NOT NULL DEFAULT 0,
		updated_at       TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteStore) Get(ctx context.Context, url string) (model.ResumableState, bool, error) {
	const query = `
	SELECT validator, accumulated, server_confirmed, updated_at
	FROM resumable_state
	WHERE url = ?
	`
	var state model.ResumableState
	var confirmed int
	var updatedAt string

	err := s.db.QueryRowContext(ctx, query, url).Scan(&state.Validator, &state.Accumulated, &confirmed, &updatedAt)
	if err == sql.ErrNoRows {
		return model.ResumableState{}, false, nil
	}
	if err != nil {
		return model.ResumableState{}, false, err
	}

	state.ServerConfirmed = confirmed != 0
	state.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return state, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, url string, state model.ResumableState) error {
	const query = `
	INSERT INTO resumable_state (url, validator, accumulated, server_confirmed, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		validator        = excluded.validator,
		accumulated      = excluded.accumulated,
		server_confirmed = excluded.server_confirmed,
		updated_at       = excluded.updated_at
	`
	updatedAt := state.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		url, state.Validator, state.Accumulated, boolToInt(state.ServerConfirmed), updatedAt.Format(time.RFC3339))
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM resumable_state WHERE url = ?`, url)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
