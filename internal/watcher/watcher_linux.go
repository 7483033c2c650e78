//go:build linux

package watcher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// readBufferSize holds many events with maximal names per read.
const readBufferSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

type sysState struct {
	fd     int // inotify
	wakeFd int // eventfd, written by Stop
	wg     sync.WaitGroup
}

// Start allocates the inotify and wake descriptors and launches the monitor
// goroutine. It returns true if the watcher is running when it returns: a
// second Start on a running watcher is a no-op. A stopped or failed watcher
// cannot be restarted.
func (w *Watcher) Start() bool {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	switch w.current() {
	case stateRunning:
		return true
	case stateFailed, stateStopped:
		return false
	}

	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		w.logger.Error("failed to initialize inotify", zap.Error(err))
		return false
	}
	wake, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		w.logger.Error("failed to create wake descriptor", zap.Error(err))
		_ = unix.Close(fd)
		return false
	}

	w.sys.fd, w.sys.wakeFd = fd, wake
	if !w.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		_ = unix.Close(wake)
		_ = unix.Close(fd)
		return w.Running()
	}

	w.sys.wg.Add(1)
	go w.monitor()

	w.logger.Info("watcher started")
	return true
}

// AddWatch registers path. It fails if the watcher is not running or the
// path cannot be watched. Adding a registered path again succeeds without
// change.
func (w *Watcher) AddWatch(path string) bool {
	path = cleanPath(path)
	if path == "" {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Running() {
		return false
	}
	if _, ok := w.byPath[path]; ok {
		return true
	}

	wd, err := unix.InotifyAddWatch(w.sys.fd, path, uint32(w.mask))
	if err != nil {
		w.logger.Warn("failed to add watch", zap.String("path", path), zap.Error(err))
		return false
	}
	if prev, ok := w.byWd[wd]; ok {
		// Another registered path names the same inode.
		w.logger.Debug("watch descriptor shared", zap.String("path", path), zap.String("existing", prev))
	}
	w.byPath[path] = wd
	w.byWd[wd] = path

	w.logger.Debug("watch added", zap.String("path", path), zap.Int("wd", wd))
	return true
}

// RemoveWatch unregisters path. It returns false if the watcher is not
// running or path was never registered.
func (w *Watcher) RemoveWatch(path string) bool {
	path = cleanPath(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Running() {
		return false
	}
	wd, ok := w.byPath[path]
	if !ok {
		return false
	}
	w.unregister(path, wd)

	if _, shared := w.byWd[wd]; !shared {
		if _, err := unix.InotifyRmWatch(w.sys.fd, uint32(wd)); err != nil {
			// EINVAL: the kernel already dropped it.
			w.logger.Debug("failed to remove watch", zap.String("path", path), zap.Error(err))
		}
	}
	w.logger.Debug("watch removed", zap.String("path", path))
	return true
}

// unregister drops path from the registry, keeping wd mapped if another
// path still shares it. Callers hold w.mu.
func (w *Watcher) unregister(path string, wd int) {
	delete(w.byPath, path)
	if w.byWd[wd] == path {
		delete(w.byWd, wd)
	}
	for p, d := range w.byPath {
		if d == wd {
			w.byWd[wd] = p
			break
		}
	}
}

// forget drops every path registered under wd. Callers hold w.mu.
func (w *Watcher) forget(wd int) {
	delete(w.byWd, wd)
	for p, d := range w.byPath {
		if d == wd {
			delete(w.byPath, p)
		}
	}
}

// Stop shuts the monitor goroutine down, waits for it, releases every watch
// and closes the descriptors. It is idempotent and safe on a watcher that
// was never started.
//
// Stop waits for the monitor goroutine, so it must not be called from the
// event callback, which runs on that goroutine. A callback that wants to stop
// the watcher should call Stop from a new goroutine.
func (w *Watcher) Stop() {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	prev := state(w.state.Swap(int32(stateStopped)))
	switch prev {
	case stateStopped:
		return
	case stateCreated:
		w.closeDone()
		return
	}

	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(w.sys.wakeFd, one[:]); err != nil {
		w.logger.Warn("failed to signal monitor", zap.Error(err))
	}
	w.sys.wg.Wait()

	w.mu.Lock()
	for wd := range w.byWd {
		_, _ = unix.InotifyRmWatch(w.sys.fd, uint32(wd))
	}
	clear(w.byPath)
	clear(w.byWd)
	_ = unix.Close(w.sys.fd)
	_ = unix.Close(w.sys.wakeFd)
	w.mu.Unlock()

	w.closeDone()
	w.logger.Info("watcher stopped")
}

func (w *Watcher) monitor() {
	defer w.sys.wg.Done()

	buf := make([]byte, readBufferSize)
	fds := []unix.PollFd{
		{Fd: int32(w.sys.fd), Events: unix.POLLIN},
		{Fd: int32(w.sys.wakeFd), Events: unix.POLLIN},
	}

	for {
		fds[0].Revents, fds[1].Revents = 0, 0
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			w.fail(fmt.Errorf("poll: %w", err))
			return
		}

		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			w.fail(fmt.Errorf("inotify descriptor error: revents %#x", fds[0].Revents))
			return
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			if err := w.drain(buf); err != nil {
				w.fail(err)
				return
			}
		}
	}
}

// drain reads and dispatches every queued event.
func (w *Watcher) drain(buf []byte) error {
	for {
		n, err := unix.Read(w.sys.fd, buf)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil
		case err != nil:
			return fmt.Errorf("read inotify: %w", err)
		case n < unix.SizeofInotifyEvent:
			return fmt.Errorf("read inotify: short read of %d bytes", n)
		}
		w.dispatch(buf[:n])
	}
}

func (w *Watcher) dispatch(buf []byte) {
	for off := 0; off+unix.SizeofInotifyEvent <= len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		start := off + unix.SizeofInotifyEvent
		end := start + int(raw.Len)
		if end > len(buf) {
			w.logger.Warn("truncated inotify event", zap.Int("offset", off))
			return
		}

		name := strings.TrimRight(string(buf[start:end]), "\x00")
		w.handle(int(raw.Wd), raw.Mask, name)
		off = end
	}
}

func (w *Watcher) handle(wd int, mask uint32, name string) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		w.logger.Warn("inotify queue overflow, events lost")
		return
	}

	w.mu.Lock()
	path, ok := w.byWd[wd]
	if ok && mask&unix.IN_IGNORED != 0 {
		// The kernel dropped the watch: the path was deleted, moved away
		// or unmounted.
		w.forget(wd)
	}
	w.mu.Unlock()

	if !ok {
		if mask&unix.IN_IGNORED != 0 {
			w.logger.Debug("ignored event for removed watch", zap.Int("wd", wd))
		} else {
			w.logger.Warn("event for unknown watch descriptor", zap.Int("wd", wd), zap.String("name", name))
		}
		return
	}

	w.cb(WatchedEvent{
		Path:   path,
		Name:   name,
		Mask:   mask,
		IsDir:  mask&unix.IN_ISDIR != 0,
		Labels: Labels(mask),
	})
}
