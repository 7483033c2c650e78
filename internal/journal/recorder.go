package journal

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBufferSize = 256
	maxBatch          = 64
)

// Recorder appends entries to a Journal from its own goroutine so that
// callers on latency-sensitive paths never wait for a disk sync. When the
// buffer is full new entries are dropped and counted.
type Recorder struct {
	journal *Journal
	logger  *zap.Logger

	mu      sync.RWMutex // guards closed against concurrent Record
	closed  bool
	entries chan Entry
	done    chan struct{}

	dropped atomic.Uint64
	written atomic.Uint64
	errMu   sync.Mutex
	lastErr error
}

// NewRecorder starts a recorder writing to j. A size of zero or less selects
// DefaultBufferSize.
func NewRecorder(j *Journal, size int, logger *zap.Logger) *Recorder {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Recorder{
		journal: j,
		logger:  logger,
		entries: make(chan Entry, size),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues e without blocking. It reports false if the entry was
// dropped because the buffer is full or the recorder is closed.
func (r *Recorder) Record(e Entry) bool {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}

	select {
	case r.entries <- e:
		return true
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("journal buffer full, dropping entries")
		}
		return false
	}
}

// Dropped returns how many entries were discarded.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns how many entries reached the journal.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Err returns the most recent write error, if any.
func (r *Recorder) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.lastErr
}

// Close stops accepting entries, flushes what is queued and waits for the
// writer goroutine. It returns the most recent write error. Close is
// idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()

	<-r.done
	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("journal entries dropped", zap.Uint64("count", n))
	}
	return r.Err()
}

func (r *Recorder) run() {
	defer close(r.done)

	batch := make([]Entry, 0, maxBatch)
	for e := range r.entries {
		batch = append(batch[:0], e)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-r.entries:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		if err := r.journal.AppendBatch(batch); err != nil {
			r.errMu.Lock()
			r.lastErr = err
			r.errMu.Unlock()
			r.logger.Error("failed to write journal entries", zap.Int("count", len(batch)), zap.Error(err))
			continue
		}
		r.written.Add(uint64(len(batch)))
	}
}
