package decl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(people), 0o644))

	w, err := NewWatcher([]string{path}, nil)
	require.NoError(t, err)
	w.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			reloaded <- struct{}{}
			return nil
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(people+"\n"), 0o644))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_Relevant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	pkg := filepath.Join(dir, "overlay")
	nested := filepath.Join(pkg, "team", "web")
	require.NoError(t, os.WriteFile(path, []byte(people), 0o644))
	require.NoError(t, os.MkdirAll(nested, 0o755))

	w, err := NewWatcher([]string{path, pkg}, nil)
	require.NoError(t, err)
	defer w.watcher.Close()

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"declaration write", fsnotify.Event{Name: path, Op: fsnotify.Write}, true},
		{"declaration replaced", fsnotify.Event{Name: path, Op: fsnotify.Create}, true},
		{"declaration chmod", fsnotify.Event{Name: path, Op: fsnotify.Chmod}, false},
		{"sibling file", fsnotify.Event{Name: filepath.Join(dir, "notes.txt"), Op: fsnotify.Write}, false},
		{"sibling cue outside package", fsnotify.Event{Name: filepath.Join(dir, "x.cue"), Op: fsnotify.Write}, false},
		{"package cue file", fsnotify.Event{Name: filepath.Join(pkg, "x.cue"), Op: fsnotify.Write}, true},
		{"package rego file", fsnotify.Event{Name: filepath.Join(pkg, "x.rego"), Op: fsnotify.Create}, true},
		{"package non-cue file", fsnotify.Event{Name: filepath.Join(pkg, "x.json"), Op: fsnotify.Write}, false},
		{"nested package rego file", fsnotify.Event{Name: filepath.Join(nested, "x.rego"), Op: fsnotify.Write}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher([]string{filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	assert.ErrorContains(t, err, "failed to stat")
}

func TestWatcher_ReloadsOneAtATime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(people), 0o644))

	w, err := NewWatcher([]string{path}, nil)
	require.NoError(t, err)
	w.Debounce = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, peak, runs atomic.Int32
	started := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			runs.Add(1)
			started <- struct{}{}
			time.Sleep(150 * time.Millisecond)
			active.Add(-1)
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(people+strings.Repeat("\n", i+1)), 0o644))
		time.Sleep(40 * time.Millisecond)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	assert.Equal(t, int32(0), active.Load(), "reload still running after Run returned")
	assert.Equal(t, int32(1), peak.Load(), "reloads overlapped")

	after := runs.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "reload started after Run returned")
}

func TestWatcher_WatchesNewSubdirectories(t *testing.T) {
	pkg := t.TempDir()

	w, err := NewWatcher([]string{pkg}, nil)
	require.NoError(t, err)
	w.Debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			select {
			case reloaded <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	sub := filepath.Join(pkg, "team")
	require.NoError(t, os.Mkdir(sub, 0o755))

	// The new directory is picked up asynchronously, so keep writing until
	// a reload is seen.
	deadline := time.After(5 * time.Second)
	for reloads := 0; reloads == 0; {
		require.NoError(t, os.WriteFile(filepath.Join(sub, "deny.rego"), []byte("package team\n"), 0o644))
		select {
		case <-reloaded:
			reloads++
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no reload after nested write")
		}
	}

	cancel()
	assert.NoError(t, <-done)
}
