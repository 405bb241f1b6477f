package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/marginalia/internal/index"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/workspace"
)

// NewLogger returns the structured JSON logger used by every command.
// The MCP command passes stderr because stdout carries the protocol.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// OpenBackend builds the configured storage backend, wrapped in a quota
// when one is set. The returned close func is never nil.
func OpenBackend(cfg StorageConfig) (storage.Backend, func() error, error) {
	noop := func() error { return nil }

	var (
		b       storage.Backend
		closeFn = noop
	)
	switch cfg.Backend {
	case BackendMemory:
		b = storage.NewMemory()
	case BackendFS:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, noop, fmt.Errorf("create storage dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("init fs storage: %w", err)
		}
		b = fs
	case BackendSQLite:
		db, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("init sqlite storage: %w", err)
		}
		b, closeFn = db, db.Close
	default:
		return nil, noop, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.QuotaBytes > 0 {
		b = storage.WithQuota(b, cfg.QuotaBytes)
	}
	return b, closeFn, nil
}

// OpenIndex opens the annotation search index named by cfg.
func OpenIndex(cfg SearchConfig) (*index.DB, error) {
	db, err := index.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("init search index: %w", err)
	}
	return db, nil
}

// NewSession builds a workspace session from cfg over backend.
func NewSession(cfg *Config, backend storage.Backend, logger *slog.Logger, opts ...workspace.Option) *workspace.Session {
	base := []workspace.Option{
		workspace.WithLogger(logger),
		workspace.WithSizing(cfg.Graph),
		workspace.WithEdgeHitThreshold(cfg.Canvas.EdgeHitThreshold),
	}
	return workspace.New(backend, append(base, opts...)...)
}
