//go:build linux

package core

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/illarion/securestore/internal/identity"
	"github.com/illarion/securestore/internal/journal"
	"github.com/illarion/securestore/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_WatchesRoot(t *testing.T) {
	var mu sync.Mutex
	var names []string
	cb := func(e watcher.WatchedEvent) {
		mu.Lock()
		defer mu.Unlock()
		if e.Has(watcher.OpCloseWrite) {
			names = append(names, e.Name)
		}
	}

	root := filepath.Join(t.TempDir(), "store")
	m, err := New(root, identity.Static(testDevice),
		WithLogger(zaptest.NewLogger(t)),
		WithEventCallback(cb))
	require.NoError(t, err)
	defer m.Close()

	require.True(t, m.IsWatcherActive())
	require.NotNil(t, m.WatcherDone())

	require.NoError(t, os.WriteFile(filepath.Join(root, "external.txt"), []byte("x"), 0600))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range names {
			if n == "external.txt" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Close())
	assert.False(t, m.IsWatcherActive())
}

func TestManager_JournalRecordsWatchEvents(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	root := filepath.Join(t.TempDir(), "store")
	m, err := New(root, identity.Static(testDevice), WithJournal(j, 0))
	require.NoError(t, err)

	require.NoError(t, m.Store("blob", []byte("payload")))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, m.Close())

	events, err := j.Events(0)
	require.NoError(t, err)

	var sawStore, sawWatch bool
	for _, e := range events {
		switch e.Kind {
		case journal.KindStore:
			sawStore = e.ID == "blob"
		case journal.KindWatch:
			if e.Name == "blob.enc" {
				sawWatch = true
			}
		}
	}
	assert.True(t, sawStore)
	assert.True(t, sawWatch, "rename into place is seen by the watcher")
}

func TestManager_CallbackMayCallBack(t *testing.T) {
	root := filepath.Join(t.TempDir(), "store")

	var m *Manager
	var once sync.Once
	ready := make(chan struct{})
	cb := func(e watcher.WatchedEvent) {
		<-ready
		once.Do(func() { _ = m.Exists("anything") })
	}

	var err error
	m, err = New(root, identity.Static(testDevice), WithEventCallback(cb))
	require.NoError(t, err)
	close(ready)

	require.NoError(t, m.Store("x", []byte("1")))

	done := make(chan error, 1)
	go func() { done <- m.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close deadlocked with a callback calling into the manager")
	}
}
