// Package sqlitestore provides a sqlite-backed SecureStore for the
// persisted device identifier.
package sqlitestore

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
	CREATE TABLE IF NOT EXISTS secure_store (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	) STRICT;
`

// Store implements claims.SecureStore over a sqlite database. Set-once
// semantics come from the primary key: the insert is a no-op when the key
// already exists, and the subsequent read returns the winning value.
type Store struct {
	db *sqlitex.Pool
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: 4,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecScript(conn, schema)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}
	return &Store{db: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) ([]byte, bool, error) {
	conn, err := s.db.Take(context.Background())
	if err != nil {
		return nil, false, err
	}
	defer s.db.Put(conn)

	return get(conn, key)
}

func (s *Store) PutIfAbsent(key string, value []byte) ([]byte, error) {
	conn, err := s.db.Take(context.Background())
	if err != nil {
		return nil, err
	}
	defer s.db.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT INTO secure_store (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING",
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return nil, err
	}

	stored, ok, err := get(conn, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("secure store row vanished for key %q", key)
	}
	return stored, nil
}

func get(conn *sqlite.Conn, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := sqlitex.Execute(conn,
		"SELECT value FROM secure_store WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, value)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}
