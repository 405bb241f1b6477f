package storage

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fsSuffix = ".kv"

// FS implements Backend with one file per key under a root directory.
type FS struct {
	root string // absolute path to the store directory
}

// NewFS creates a new FS backend rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// keyPath maps a key to its file. Keys are query-escaped so that document
// paths inside keys never produce separators.
func (f *FS) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("storage: empty key")
	}
	name := url.QueryEscape(key) + fsSuffix
	abs := filepath.Join(f.root, name)
	if filepath.Dir(abs) != f.root {
		return "", fmt.Errorf("storage: key escapes root: %s", key)
	}
	return abs, nil
}

// Get returns the value stored under key.
func (f *FS) Get(key string) (string, bool, error) {
	abs, err := f.keyPath(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("storage: read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set atomically writes value: tmp file → fsync → rename.
func (f *FS) Set(key, value string) error {
	abs, err := f.keyPath(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".marginalia-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.WriteString(value); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Remove deletes the file for key.
func (f *FS) Remove(key string) error {
	abs, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key.
func (f *FS) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fsSuffix) {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(e.Name(), fsSuffix))
		if err != nil {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}
