package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestFS_SetAndGet(t *testing.T) {
	s := tempFS(t)
	require.NoError(t, s.Set("annotations", `{"a.pdf":{}}`))
	got, ok, err := s.Get("annotations")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"a.pdf":{}}`, got)
}

func TestFS_GetMissing(t *testing.T) {
	s := tempFS(t)
	_, ok, err := s.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFS_KeysWithPathCharacters(t *testing.T) {
	s := tempFS(t)
	keys := []string{"layout:/home/me/books/a.pdf", "layout:C:\\docs\\b.epub", "annotations"}
	for _, k := range keys {
		require.NoError(t, s.Set(k, "v"), k)
	}
	got, err := s.Keys()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "annotations", got[0], "keys not sorted: %v", got)

	// No nested directories are created for path-like keys.
	entries, _ := os.ReadDir(s.Root())
	for _, e := range entries {
		assert.False(t, e.IsDir(), "unexpected directory %s", e.Name())
	}
}

func TestFS_Remove(t *testing.T) {
	s := tempFS(t)
	_ = s.Set("k", "v")
	require.NoError(t, s.Remove("k"))
	_, ok, _ := s.Get("k")
	assert.False(t, ok, "key still present")
	assert.NoError(t, s.Remove("k"), "second Remove should be a no-op")
}

func TestFS_AtomicWriteNoLeftovers(t *testing.T) {
	s := tempFS(t)
	_ = s.Set("atomic", "original")
	require.NoError(t, s.Set("atomic", "updated"))
	got, _, _ := s.Get("atomic")
	assert.Equal(t, "updated", got)
	matches, _ := filepath.Glob(filepath.Join(s.root, ".marginalia-tmp-*"))
	assert.Empty(t, matches, "leftover temp files")
}

func TestFS_EmptyKeyRejected(t *testing.T) {
	s := tempFS(t)
	assert.Error(t, s.Set("", "x"))
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/marginalia-does-not-exist-" + t.Name())
	assert.Error(t, err)
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "marginalia-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	assert.Error(t, err, "root is a file")
}
