//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	assert.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM annotations_fts`).Scan(&count), "annotations_fts table missing")
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	rows := []Row{{ID: "h1", Kind: "highlight", Page: 3, Body: "Operating margin improved across every segment."}}
	require.NoError(t, db.UpsertDocument("/fts.pdf", "f1", rows))

	hits, err := db.Search("margin", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/fts.pdf", hits[0].Path)
	assert.Equal(t, 3, hits[0].Page)
	assert.Contains(t, hits[0].Snippet, "<b>", "snippet should carry highlight markers")
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument("/evo.pdf", "1", []Row{{ID: "a", Kind: "note", Body: "original text"}})
	_ = db.UpsertDocument("/evo.pdf", "2", []Row{{ID: "a", Kind: "note", Body: "replacement text"}})

	hits, _ := db.Search("original", 10)
	assert.Empty(t, hits, "old FTS content should be gone")
	hits, _ = db.Search("replacement", 10)
	assert.Len(t, hits, 1)
}
