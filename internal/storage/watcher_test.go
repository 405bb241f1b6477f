package storage

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_FSBackendChangeFiresCallback(t *testing.T) {
	s := tempFS(t)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	target, ok := TargetFor(WithQuota(s, 1<<20))
	require.True(t, ok, "FS backend should have a watch target")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go Watch(ctx, target, logger, func() { calls.Add(1) })
	time.Sleep(100 * time.Millisecond)

	_ = s.Set("annotations", "{}")
	_ = s.Set("annotations", `{"a":{}}`)

	assert.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond, "watcher callback not fired")
}

func TestTargetFor_MemoryHasNone(t *testing.T) {
	_, ok := TargetFor(NewMemory())
	assert.False(t, ok, "memory backend has no files to watch")
}
