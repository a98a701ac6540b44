package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherWithEmptyPathIsInert(t *testing.T) {
	w, err := NewWatcher("")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	select {
	case <-w.Updates:
		t.Fatal("inert watcher should never publish an update")
	default:
	}
}

func TestWatcherPublishesTuningOnFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  stall_ticks: 10\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("tuning:\n  stall_ticks: 99\n"), 0o644))

	select {
	case update := <-w.Updates:
		require.Equal(t, 99, update.StallTicks)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tuning update")
	}
}
