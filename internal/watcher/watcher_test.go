package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case batch, ok := <-ch:
		require.True(t, ok, "changes channel closed")
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for changes")
		return nil
	}
}

func TestNewRejectsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := New(path)
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = New(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestChangesAreDebounced(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, WithDebounce(100*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := w.Changes(ctx)

	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(a, []byte("three"), 0o644))

	batch := receive(t, changes)
	assert.Equal(t, []string{a, b}, batch)
}

func TestRecursiveWatchesNewDirectories(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, WithDebounce(100*time.Millisecond), WithRecursive(true))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := w.Changes(ctx)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.Contains(t, receive(t, changes), sub)

	nested := filepath.Join(sub, "n.txt")
	require.NoError(t, os.WriteFile(nested, []byte("x"), 0o644))
	assert.Contains(t, receive(t, changes), nested)
}

func TestChannelClosesOnCancel(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes := w.Changes(ctx)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestHandle(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	excluded := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(excluded, 0o755))

	w, err := New(dir, WithRecursive(true), WithExclude("out"))
	require.NoError(t, err)
	defer w.Close()

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"write", fsnotify.Event{Name: file, Op: fsnotify.Write}, true},
		{"write and chmod", fsnotify.Event{Name: file, Op: fsnotify.Write | fsnotify.Chmod}, true},
		{"remove", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove}, true},
		{"rename", fsnotify.Event{Name: file, Op: fsnotify.Rename}, true},
		{"chmod only", fsnotify.Event{Name: file, Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: filepath.Join(dir, ".swp"), Op: fsnotify.Write}, false},
		{"excluded directory", fsnotify.Event{Name: excluded, Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := w.handle(tt.ev)
			assert.Equal(t, tt.want, got)
		})
	}
}
