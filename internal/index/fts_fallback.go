//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on annotations.body.
	return nil
}

func ftsInsert(_ *sql.Tx, _, _, _, _ string) error {
	// Body is already stored in the annotations table; nothing extra to do.
	return nil
}

func ftsDeleteDocument(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Matching is case-insensitive for ASCII only.
func (db *DB) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT path, id, kind, page, substr(body, 1, 200)
		FROM annotations
		WHERE body LIKE ? OR tags LIKE ?
		ORDER BY path, id
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Path, &h.ID, &h.Kind, &h.Page, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
