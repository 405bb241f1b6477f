// Package testutil provides shared test helpers for backends, stores and
// deterministic clocks.
package testutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/starford/marginalia/internal/annotations"
	"github.com/starford/marginalia/internal/storage"
)

// Epoch is the first instant handed out by Clock.
var Epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// TestSQLite creates a temporary SQLite backend that is automatically
// cleaned up.
func TestSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	dbFile, err := os.CreateTemp("", "marginalia-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := storage.OpenSQLite(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Clock returns a clock that advances one minute per call, so createdAt
// ordering follows creation order.
func Clock() func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return Epoch.Add(time.Duration(n) * time.Minute)
	}
}

// IDs returns a generator of prefix-1, prefix-2, ...
func IDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// NewStore builds an annotation store over b with a deterministic clock and
// id sequence.
func NewStore(t *testing.T, b storage.Backend) *annotations.Store {
	t.Helper()
	return annotations.New(b,
		annotations.WithLogger(Logger()),
		annotations.WithClock(Clock()),
		annotations.WithIDGenerator(IDs("a")),
	)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
