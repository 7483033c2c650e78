package watcher

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Op is an inotify event bit. Values follow the Linux ABI.
type Op uint32

const (
	OpAccess       Op = 0x00000001
	OpModify       Op = 0x00000002
	OpAttrib       Op = 0x00000004
	OpCloseWrite   Op = 0x00000008
	OpCloseNoWrite Op = 0x00000010
	OpOpen         Op = 0x00000020
	OpMovedFrom    Op = 0x00000040
	OpMovedTo      Op = 0x00000080
	OpCreate       Op = 0x00000100
	OpDelete       Op = 0x00000200
	OpDeleteSelf   Op = 0x00000400
	OpMoveSelf     Op = 0x00000800
	OpUnmount      Op = 0x00002000
	OpOverflow     Op = 0x00004000
	OpIgnored      Op = 0x00008000
	OpIsDir        Op = 0x40000000
)

// DefaultMask is the set of events requested for every watch.
const DefaultMask = OpModify | OpAttrib | OpCloseWrite | OpCreate | OpDelete |
	OpMovedFrom | OpMovedTo | OpDeleteSelf | OpMoveSelf

var opNames = []struct {
	op   Op
	name string
}{
	{OpAccess, "ACCESS"},
	{OpModify, "MODIFY"},
	{OpAttrib, "ATTRIB"},
	{OpCloseWrite, "CLOSE_WRITE"},
	{OpCloseNoWrite, "CLOSE_NOWRITE"},
	{OpOpen, "OPEN"},
	{OpMovedFrom, "MOVED_FROM"},
	{OpMovedTo, "MOVED_TO"},
	{OpCreate, "CREATE"},
	{OpDelete, "DELETE"},
	{OpDeleteSelf, "DELETE_SELF"},
	{OpMoveSelf, "MOVE_SELF"},
	{OpUnmount, "UNMOUNT"},
	{OpOverflow, "Q_OVERFLOW"},
	{OpIgnored, "IGNORED"},
	{OpIsDir, "ISDIR"},
}

// Labels names every bit set in mask, in ABI order.
func Labels(mask uint32) []string {
	var labels []string
	for _, n := range opNames {
		if mask&uint32(n.op) != 0 {
			labels = append(labels, n.name)
		}
	}
	return labels
}

func (o Op) String() string {
	labels := Labels(uint32(o))
	if len(labels) == 0 {
		return "0"
	}
	return strings.Join(labels, "|")
}

// WatchedEvent is one change under a watched path.
type WatchedEvent struct {
	Path   string   // the watched path the event belongs to
	Name   string   // child name for events inside a watched directory, else empty
	Mask   uint32   // raw event bits
	IsDir  bool     // the subject is a directory
	Labels []string // names of the bits in Mask
}

// Has reports whether every bit of op is set.
func (e WatchedEvent) Has(op Op) bool {
	return e.Mask&uint32(op) == uint32(op)
}

// FullPath joins Path and Name.
func (e WatchedEvent) FullPath() string {
	if e.Name == "" {
		return e.Path
	}
	return filepath.Join(e.Path, e.Name)
}

// EventCallback receives events on the monitor goroutine. It must not call
// Stop directly: Stop waits for the monitor goroutine and would deadlock.
type EventCallback func(WatchedEvent)

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMask replaces DefaultMask for watches added later.
func WithMask(mask Op) Option {
	return func(w *Watcher) {
		if mask != 0 {
			w.mask = mask
		}
	}
}

// WithFatalHandler registers fn to be called once, on the monitor goroutine,
// if the monitor loop dies.
func WithFatalHandler(fn func(error)) Option {
	return func(w *Watcher) {
		w.onFatal = fn
	}
}

type state int32

const (
	stateCreated state = iota
	stateRunning
	stateFailed
	stateStopped
)

// Watcher delivers filesystem events for registered paths.
type Watcher struct {
	cb      EventCallback
	logger  *zap.Logger
	mask    Op
	onFatal func(error)

	lifecycle sync.Mutex // serializes Start and Stop
	state     atomic.Int32

	mu     sync.Mutex // guards the registry
	byPath map[string]int
	byWd   map[int]string

	errMu sync.Mutex
	err   error

	done     chan struct{}
	doneOnce sync.Once

	sys sysState
}

// New creates a Watcher that calls cb for each event. A nil cb discards
// events.
func New(cb EventCallback, opts ...Option) *Watcher {
	if cb == nil {
		cb = func(WatchedEvent) {}
	}
	w := &Watcher{
		cb:     cb,
		logger: zap.NewNop(),
		mask:   DefaultMask,
		byPath: make(map[string]int),
		byWd:   make(map[int]string),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) current() state {
	return state(w.state.Load())
}

// Running reports whether the monitor loop is active.
func (w *Watcher) Running() bool {
	return w.current() == stateRunning
}

// Err returns the error that ended the monitor loop, if any.
func (w *Watcher) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Done is closed when the monitor loop has died or the watcher is stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// WatchedPaths returns the registered paths, sorted.
func (w *Watcher) WatchedPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.byPath))
	for p := range w.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (w *Watcher) closeDone() {
	w.doneOnce.Do(func() { close(w.done) })
}

// fail records a terminal monitor loop error.
func (w *Watcher) fail(err error) {
	w.errMu.Lock()
	w.err = err
	w.errMu.Unlock()

	if !w.state.CompareAndSwap(int32(stateRunning), int32(stateFailed)) {
		return
	}
	w.logger.Error("watcher monitor loop failed", zap.Error(err))
	w.closeDone()
	if w.onFatal != nil {
		w.onFatal(err)
	}
}

func cleanPath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Clean(path)
}
