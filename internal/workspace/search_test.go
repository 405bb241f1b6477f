package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/workspace"
)

func seedSearch(t *testing.T, s *workspace.Session) (string, string) {
	t.Helper()
	s.Open(docB)
	hb, err := s.AddHighlight(annotations.HighlightInput{Text: "Revenue fell in Europe", Page: 7})
	require.NoError(t, err)

	s.Open(docA)
	na, err := s.AddNote("compare with revenue guidance", 0)
	require.NoError(t, err)
	_, err = s.AddNote("unrelated", 0)
	require.NoError(t, err)
	return hb.ID, na.ID
}

func TestSession_SearchWithIndex(t *testing.T) {
	idx, err := index.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	s := newSession(t, storage.NewMemory(), workspace.WithSearchIndex(idx))
	hb, na := seedSearch(t, s)

	hits, err := s.Search("revenue", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	byID := map[string]index.Hit{}
	for _, h := range hits {
		byID[h.ID] = h
	}
	assert.Equal(t, docB, byID[hb].Path)
	assert.Equal(t, 7, byID[hb].Page)
	assert.Equal(t, docA, byID[na].Path)

	require.True(t, s.DeleteAnnotation(na))
	hits, err = s.Search("revenue", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, hb, hits[0].ID)
}

func TestSession_SearchWithoutIndexScansStore(t *testing.T) {
	s := newSession(t, storage.NewMemory())
	hb, na := seedSearch(t, s)

	hits, err := s.Search("REVENUE", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	// Scan results are ordered by path then id.
	assert.Equal(t, na, hits[0].ID)
	assert.Equal(t, hb, hits[1].ID)

	hits, err = s.Search("revenue", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSession_SearchMatchesTags(t *testing.T) {
	s := newSession(t, storage.NewMemory())
	s.Open(docA)
	a, err := s.AddNote("plain body", 0)
	require.NoError(t, err)
	require.True(t, s.AddTag(a.ID, "Forecast", ""))

	hits, err := s.Search("forecast", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a.ID, hits[0].ID)
}
