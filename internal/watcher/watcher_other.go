//go:build !linux

package watcher

import (
	"errors"

	"go.uber.org/zap"
)

var errUnsupported = errors.New("filesystem watching is only supported on linux")

type sysState struct{}

// Start always fails on this platform.
func (w *Watcher) Start() bool {
	w.logger.Warn("watcher not started", zap.Error(errUnsupported))
	return false
}

// AddWatch always fails on this platform.
func (w *Watcher) AddWatch(path string) bool {
	return false
}

// RemoveWatch always fails on this platform.
func (w *Watcher) RemoveWatch(path string) bool {
	return false
}

// Stop marks the watcher stopped.
func (w *Watcher) Stop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	w.state.Store(int32(stateStopped))
	w.closeDone()
}
