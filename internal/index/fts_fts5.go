//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS annotations_fts USING fts5(
			path UNINDEXED,
			id UNINDEXED,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, path, id, body, tags string) error {
	_, err := tx.Exec(`INSERT INTO annotations_fts (path, id, body, tags) VALUES (?, ?, ?, ?)`,
		path, id, body, tags)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

func ftsDeleteDocument(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM annotations_fts WHERE path = ?`, path)
}

// Search performs an FTS5 full-text search and returns matching annotations
// with snippets, best match first.
func (db *DB) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.path,
		       f.id,
		       a.kind,
		       a.page,
		       snippet(annotations_fts, 2, '<b>', '</b>', '...', 16)
		FROM annotations_fts f
		JOIN annotations a ON a.path = f.path AND a.id = f.id
		WHERE annotations_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
