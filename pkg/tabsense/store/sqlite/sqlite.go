package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/tabsense/pkg/tabsense/store"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// sqliteStore implements store.Store on SQLite.
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a result cache at path. Use MemoryPath for
// a cache that lives only as long as the process.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serialises writers anyway, and each pooled
	// connection to ":memory:" would see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// Close closes the database connection.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS results (
	namespace TEXT NOT NULL,
	digest TEXT NOT NULL,
	label TEXT NOT NULL,
	score REAL NOT NULL,
	tags_json TEXT,
	created_at TEXT NOT NULL,
	PRIMARY KEY(namespace, digest)
);

CREATE INDEX IF NOT EXISTS idx_results_namespace ON results(namespace);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// GetResult returns a cached entry.
func (s *sqliteStore) GetResult(ctx context.Context, key store.Key) (store.Entry, bool, error) {
	var (
		e         store.Entry
		tagsJSON  sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT label, score, tags_json, created_at
FROM results WHERE namespace = ? AND digest = ?`,
		key.Namespace, key.Digest,
	).Scan(&e.Label, &e.Score, &tagsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entry{}, false, nil
	}
	if err != nil {
		return store.Entry{}, false, err
	}

	e.Key = key
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &e.Tags); err != nil {
			return store.Entry{}, false, fmt.Errorf("decode tags: %w", err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		e.CreatedAt = t
	}
	return e, true, nil
}

// PutResult inserts or replaces an entry.
func (s *sqliteStore) PutResult(ctx context.Context, e store.Entry) error {
	var tagsJSON sql.NullString
	if e.Tags != nil {
		data, err := json.Marshal(e.Tags)
		if err != nil {
			return err
		}
		tagsJSON = sql.NullString{String: string(data), Valid: true}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO results (namespace, digest, label, score, tags_json, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(namespace, digest) DO UPDATE SET
	label=excluded.label,
	score=excluded.score,
	tags_json=excluded.tags_json,
	created_at=excluded.created_at`,
		e.Namespace, e.Digest, e.Label, e.Score, tagsJSON, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Purge removes entries of one namespace, or all of them.
func (s *sqliteStore) Purge(ctx context.Context, namespace string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if namespace == "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM results`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM results WHERE namespace = ?`, namespace)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats reports entry counts per namespace.
func (s *sqliteStore) Stats(ctx context.Context) (store.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT namespace, COUNT(*) FROM results GROUP BY namespace`)
	if err != nil {
		return store.Stats{}, err
	}
	defer rows.Close()

	st := store.Stats{ByNamespace: make(map[string]int64)}
	for rows.Next() {
		var (
			ns string
			n  int64
		)
		if err := rows.Scan(&ns, &n); err != nil {
			return store.Stats{}, err
		}
		st.ByNamespace[ns] = n
		st.Entries += n
	}
	return st, rows.Err()
}
