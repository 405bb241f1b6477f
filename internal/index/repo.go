package index

import (
	"fmt"
	"strings"
	"time"
)

// Row is one indexed annotation.
type Row struct {
	ID    string
	Kind  string
	Color string
	Page  int
	Tags  []string
	// Body is the searchable text: highlight text and attached note.
	Body string
}

// Hit represents one search hit.
type Hit struct {
	Path    string `json:"path"`
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Page    int    `json:"page"`
	Snippet string `json:"snippet"`
}

// UpsertDocument replaces every row of a document, its FTS entries and
// its checksum within a transaction.
func (db *DB) UpsertDocument(path, checksum string, rows []Row) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO documents (path, checksum, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, path, checksum, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	ftsDeleteDocument(tx, path)
	if _, err := tx.Exec(`DELETE FROM annotations WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: clear annotations: %w", err)
	}

	if len(rows) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO annotations (path, id, kind, color, page, tags, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("index: prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			tags := strings.Join(r.Tags, " ")
			if _, err := stmt.Exec(path, r.ID, r.Kind, r.Color, r.Page, tags, r.Body); err != nil {
				return fmt.Errorf("index: insert annotation: %w", err)
			}
			// FTS insert (no-op when FTS5 tag is absent).
			if err := ftsInsert(tx, path, r.ID, r.Body, tags); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and all of its rows.
func (db *DB) DeleteDocument(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteDocument(tx, path)
	_, _ = tx.Exec(`DELETE FROM annotations WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM documents WHERE path = ?`, path)

	return tx.Commit()
}

// AllChecksums returns the stored checksum of every indexed document.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
