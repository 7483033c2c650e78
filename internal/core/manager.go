package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/illarion/securestore/internal/journal"
	"github.com/illarion/securestore/internal/storage"
	"github.com/illarion/securestore/internal/watcher"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrNotInitialized = errors.New("securestore not initialized")

type options struct {
	logger       *zap.Logger
	storeOpts    []storage.Option
	watch        bool
	watchOpts    []watcher.Option
	callback     watcher.EventCallback
	journal      *journal.Journal
	recorderSize int
}

// Option configures a Manager.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithStoreOptions passes options through to the blob store.
func WithStoreOptions(opts ...storage.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithWatcher enables or disables watching the storage root. Enabled by
// default.
func WithWatcher(enabled bool) Option {
	return func(o *options) {
		o.watch = enabled
	}
}

// WithWatcherOptions passes options through to the watcher.
func WithWatcherOptions(opts ...watcher.Option) Option {
	return func(o *options) {
		o.watchOpts = append(o.watchOpts, opts...)
	}
}

// WithEventCallback receives every watcher event. It runs on the watcher's
// monitor goroutine and must not block. It must not call Close directly,
// since Close waits for that goroutine; start Close on a new goroutine
// instead.
func WithEventCallback(cb watcher.EventCallback) Option {
	return func(o *options) {
		o.callback = cb
	}
}

// WithJournal records store activity and watcher events in j. The caller
// keeps ownership of j and closes it after the Manager.
func WithJournal(j *journal.Journal, bufferSize int) Option {
	return func(o *options) {
		o.journal = j
		o.recorderSize = bufferSize
	}
}

// Manager is the securestore facade.
type Manager struct {
	mu       sync.RWMutex // guards closed against in-flight operations
	closed   bool
	store    *storage.Store
	watcher  *watcher.Watcher
	recorder *journal.Recorder
	callback watcher.EventCallback
	logger   *zap.Logger
}

// New opens the store at root with a key derived from src. Failure to start
// the watcher is not fatal: the Manager works without it and
// IsWatcherActive reports false.
func New(root string, src crypto.IdentitySource, opts ...Option) (*Manager, error) {
	o := options{logger: zap.NewNop(), watch: true}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := append([]storage.Option{storage.WithLogger(o.logger)}, o.storeOpts...)
	store, err := storage.New(root, src, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	m := &Manager{
		store:    store,
		callback: o.callback,
		logger:   o.logger,
	}
	if o.journal != nil {
		m.recorder = journal.NewRecorder(o.journal, o.recorderSize, o.logger)
	}
	if o.watch {
		m.watcher = m.startWatcher(o.watchOpts)
	}

	m.logger.Info("securestore ready",
		zap.String("root", store.Root()),
		zap.Bool("watcher", m.watcher != nil),
		zap.Bool("journal", m.recorder != nil))
	return m, nil
}

func (m *Manager) startWatcher(extra []watcher.Option) *watcher.Watcher {
	opts := append([]watcher.Option{
		watcher.WithLogger(m.logger),
		watcher.WithFatalHandler(func(err error) {
			m.logger.Error("watcher died", zap.Error(err))
		}),
	}, extra...)
	w := watcher.New(m.onEvent, opts...)

	if !w.Start() {
		m.logger.Warn("watcher unavailable, continuing without change notifications")
		w.Stop()
		return nil
	}
	if !w.AddWatch(m.store.Root()) {
		m.logger.Warn("failed to watch storage root", zap.String("root", m.store.Root()))
		w.Stop()
		return nil
	}
	return w
}

func (m *Manager) onEvent(e watcher.WatchedEvent) {
	if m.recorder != nil {
		m.recorder.Record(journal.Entry{
			Kind:   journal.KindWatch,
			Path:   e.Path,
			Name:   e.Name,
			Mask:   e.Mask,
			Labels: e.Labels,
		})
	}
	if m.callback != nil {
		m.callback(e)
	}
}

func (m *Manager) record(kind journal.Kind, id string) {
	if m.recorder != nil {
		m.recorder.Record(journal.Entry{Kind: kind, ID: id})
	}
}

// acquire read-locks m for one operation. The returned bool is false for a
// nil or closed Manager, in which case nothing is locked.
func (m *Manager) acquire() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return false
	}
	return true
}

func (m *Manager) release() {
	m.mu.RUnlock()
}

// IsInitialized reports whether m is open.
func (m *Manager) IsInitialized() bool {
	if !m.acquire() {
		return false
	}
	defer m.release()
	return true
}

// Store saves data under id.
func (m *Manager) Store(id string, data []byte) error {
	if !m.acquire() {
		return ErrNotInitialized
	}
	defer m.release()

	if err := m.store.Store(id, data); err != nil {
		return err
	}
	m.record(journal.KindStore, id)
	return nil
}

// Retrieve returns the data stored under id.
func (m *Manager) Retrieve(id string) ([]byte, error) {
	if !m.acquire() {
		return nil, ErrNotInitialized
	}
	defer m.release()
	return m.store.Retrieve(id)
}

// Delete removes id. Deleting a missing id succeeds.
func (m *Manager) Delete(id string) error {
	if !m.acquire() {
		return ErrNotInitialized
	}
	defer m.release()

	if err := m.store.Delete(id); err != nil {
		return err
	}
	m.record(journal.KindDelete, id)
	return nil
}

// Exists reports whether id has stored data.
func (m *Manager) Exists(id string) bool {
	if !m.acquire() {
		return false
	}
	defer m.release()
	return m.store.Exists(id)
}

// List returns every stored id, sorted.
func (m *Manager) List() ([]string, error) {
	if !m.acquire() {
		return nil, ErrNotInitialized
	}
	defer m.release()
	return m.store.List()
}

// Root returns the storage directory, or "" for an unusable Manager.
func (m *Manager) Root() string {
	if !m.acquire() {
		return ""
	}
	defer m.release()
	return m.store.Root()
}

// IsWatcherActive reports whether the watcher is running.
func (m *Manager) IsWatcherActive() bool {
	if !m.acquire() {
		return false
	}
	defer m.release()
	return m.watcher != nil && m.watcher.Running()
}

// WatcherErr returns the error that stopped the watcher, if any.
func (m *Manager) WatcherErr() error {
	if !m.acquire() {
		return nil
	}
	defer m.release()
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Err()
}

// WatcherDone is closed when the watcher stops for any reason. It is nil
// when no watcher is running.
func (m *Manager) WatcherDone() <-chan struct{} {
	if !m.acquire() {
		return nil
	}
	defer m.release()
	if m.watcher == nil {
		return nil
	}
	return m.watcher.Done()
}

// Close stops the watcher, flushes pending journal entries and wipes the
// master key. Closing twice is a no-op.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// The watcher callback may still be running and may call back into m,
	// so it is stopped without holding the lock.
	var err error
	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.recorder != nil {
		err = multierr.Append(err, m.recorder.Close())
	}
	err = multierr.Append(err, m.store.Close())

	m.logger.Info("securestore closed")
	return err
}
