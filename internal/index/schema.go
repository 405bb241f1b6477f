// Package index provides a SQLite-backed full-text index over stored
// annotations, with optional FTS5 ranking.
package index

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS annotations (
	path  TEXT NOT NULL,
	id    TEXT NOT NULL,
	kind  TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	page  INTEGER NOT NULL DEFAULT 0,
	tags  TEXT NOT NULL DEFAULT '',
	body  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (path, id)
);

CREATE INDEX IF NOT EXISTS idx_annotations_path ON annotations(path);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// An empty dsn or ":memory:" keeps the index in memory.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	params := "_journal_mode=WAL&_busy_timeout=5000"
	if strings.Contains(dsn, "?") {
		dsn += "&" + params
	} else {
		dsn += "?" + params
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// One connection: an in-memory database is private to its connection.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
