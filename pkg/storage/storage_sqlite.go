package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteStore keeps all collections in a single kv table keyed by (collection, key).
type SQLiteStore struct {
	conn *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the database at path and applies the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open sqlite database %s", path)
	}
	// Only one writer at a time in sqlite.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, eris.Wrap(err, "failed to migrate sqlite schema")
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (collection, key)
	);
	`
	_, err := s.conn.ExecContext(ctx, schema)
	return err
}

type kvRow struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

func (s *SQLiteStore) Load(ctx context.Context, collection string) (map[string][]byte, error) {
	var rows []kvRow
	err := s.conn.SelectContext(ctx, &rows, "SELECT key, value FROM kv WHERE collection = ?", collection)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load collection %s from sqlite", collection)
	}
	entries := make(map[string][]byte, len(rows))
	for _, row := range rows {
		entries[row.Key] = row.Value
	}
	return entries, nil
}

func (s *SQLiteStore) Save(ctx context.Context, collection string, entries map[string][]byte) error {
	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "failed to begin sqlite transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM kv WHERE collection = ?", collection); err != nil {
		return eris.Wrapf(err, "failed to clear collection %s", collection)
	}

	stmt, err := tx.PreparexContext(ctx, "INSERT INTO kv (collection, key, value) VALUES (?, ?, ?)")
	if err != nil {
		return eris.Wrap(err, "failed to prepare insert")
	}
	defer stmt.Close()

	for k, v := range entries {
		if v == nil {
			v = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, collection, k, v); err != nil {
			return eris.Wrapf(err, "failed to insert %s/%s", collection, k)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "failed to commit sqlite transaction")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.conn.Close(); err != nil {
		return eris.Wrap(err, "failed to close sqlite database")
	}
	return nil
}
