package journal

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/illarion/securestore/internal/crypto"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Bucket names
var (
	ConfigBucket = []byte("config") // version, timestamps, device id
	EventsBucket = []byte("events") // sequence -> Entry JSON
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigDeviceID = []byte("device_id")
)

const (
	schemaVersion = "1"
	deviceIDSize  = 16
)

var (
	ErrNotFound     = errors.New("not found")
	ErrClosed       = errors.New("journal closed")
	ErrBadVersion   = errors.New("unsupported journal version")
	ErrCorruptEntry = errors.New("corrupt journal entry")
	ErrLocked       = errors.New("journal is locked by another process")
)

// Kind classifies an Entry.
type Kind string

const (
	KindStore  Kind = "store"
	KindDelete Kind = "delete"
	KindWatch  Kind = "watch"
)

// Entry is one journal record.
type Entry struct {
	Seq    uint64    `json:"seq"`
	Time   time.Time `json:"time"`
	Kind   Kind      `json:"kind"`
	ID     string    `json:"id,omitempty"`
	Path   string    `json:"path,omitempty"`
	Name   string    `json:"name,omitempty"`
	Mask   uint32    `json:"mask,omitempty"`
	Labels []string  `json:"labels,omitempty"`
}

// Option configures a Journal.
type Option func(*Journal)

// Logger sets the logger used for journal diagnostics.
func Logger(logger *zap.Logger) Option {
	return func(j *Journal) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// Timeout bounds how long Open waits for the file lock held by another
// process.
func Timeout(d time.Duration) Option {
	return func(j *Journal) {
		j.timeout = d
	}
}

// Journal is an append-only event log with a small config area.
// It is safe for concurrent use.
type Journal struct {
	mu      sync.RWMutex // write-locked while Compact swaps db
	db      *bolt.DB
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

var _ crypto.IdentitySource = (*Journal)(nil)

// Open opens or creates the journal at path and ensures its buckets exist.
func Open(path string, opts ...Option) (*Journal, error) {
	j := &Journal{
		path:    path,
		timeout: time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(j)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: j.timeout})
	if errors.Is(err, bolt.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	j.db = db

	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}

	j.logger.Debug("journal opened", zap.String("path", path))
	return j, nil
}

func (j *Journal) initialize() error {
	return j.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, EventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if v := config.Get(ConfigVersion); v != nil {
			if string(v) != schemaVersion {
				return fmt.Errorf("%w: %s", ErrBadVersion, v)
			}
			return nil
		}

		if err := config.Put(ConfigVersion, []byte(schemaVersion)); err != nil {
			return err
		}
		created, _ := time.Now().UTC().MarshalBinary()
		return config.Put(ConfigCreated, created)
	})
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func (j *Journal) view(fn func(*bolt.Tx) error) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.db == nil {
		return ErrClosed
	}
	return j.db.View(fn)
}

func (j *Journal) update(fn func(*bolt.Tx) error) error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.db == nil {
		return ErrClosed
	}
	return j.db.Update(fn)
}

// Created returns when the journal was first initialized.
func (j *Journal) Created() (time.Time, error) {
	var created time.Time
	err := j.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigCreated)
		if data == nil {
			return fmt.Errorf("created time %w", ErrNotFound)
		}
		return created.UnmarshalBinary(data)
	})
	return created, err
}

// DeviceID retrieves the stored device id.
func (j *Journal) DeviceID() (string, error) {
	var id string
	err := j.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigDeviceID)
		if data == nil {
			return fmt.Errorf("device_id %w", ErrNotFound)
		}
		id = string(data)
		return nil
	})
	return id, err
}

// GetOrCreateDeviceID retrieves the device id, generating and storing a
// random one on first use.
func (j *Journal) GetOrCreateDeviceID() (string, error) {
	var id string
	err := j.update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if data := config.Get(ConfigDeviceID); data != nil {
			id = string(data)
			return nil
		}

		b, err := crypto.GenerateRandom(deviceIDSize)
		if err != nil {
			return fmt.Errorf("failed to generate device ID: %w", err)
		}
		id = hex.EncodeToString(b)
		return config.Put(ConfigDeviceID, []byte(id))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Identity implements crypto.IdentitySource using the device id.
func (j *Journal) Identity() (string, error) {
	return j.GetOrCreateDeviceID()
}

// Append stores e and returns its assigned sequence number. A zero Time is
// set to now.
func (j *Journal) Append(e Entry) (uint64, error) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	err := j.update(func(tx *bolt.Tx) error {
		events := tx.Bucket(EventsBucket)
		seq, err := events.NextSequence()
		if err != nil {
			return err
		}
		e.Seq = seq

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return events.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append entry: %w", err)
	}
	return e.Seq, nil
}

// AppendBatch stores entries in a single transaction.
func (j *Journal) AppendBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()

	err := j.update(func(tx *bolt.Tx) error {
		events := tx.Bucket(EventsBucket)
		for _, e := range entries {
			if e.Time.IsZero() {
				e.Time = now
			}
			seq, err := events.NextSequence()
			if err != nil {
				return err
			}
			e.Seq = seq

			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := events.Put(seqKey(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append entries: %w", err)
	}
	return nil
}

// Events returns up to limit of the most recent entries, oldest first.
// A limit of zero or less returns every entry.
func (j *Journal) Events(limit int) ([]Entry, error) {
	var entries []Entry
	err := j.view(func(tx *bolt.Tx) error {
		c := tx.Bucket(EventsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) == limit {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: seq %d: %w", ErrCorruptEntry, binary.BigEndian.Uint64(k), err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (j *Journal) Count() (int, error) {
	var n int
	err := j.view(func(tx *bolt.Tx) error {
		n = tx.Bucket(EventsBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Prune deletes all but the newest keep entries and returns how many were
// removed.
func (j *Journal) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var removed int
	err := j.update(func(tx *bolt.Tx) error {
		events := tx.Bucket(EventsBucket)
		total := events.Stats().KeyN
		excess := total - keep
		if excess <= 0 {
			return nil
		}

		doomed := make([][]byte, 0, excess)
		c := events.Cursor()
		for k, _ := c.First(); k != nil && len(doomed) < excess; k, _ = c.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := events.Delete(k); err != nil {
				return err
			}
		}
		removed = len(doomed)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return removed, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after Prune to reclaim disk space.
func (j *Journal) Compact() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return ErrClosed
	}
	srcPath := j.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = j.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				if err := dstBucket.SetSequence(srcBucket.Sequence()); err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := j.db.Close(); err != nil {
		os.Remove(tmpPath)
		return j.reopen(srcPath, fmt.Errorf("failed to close source database: %w", err))
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		os.Remove(tmpPath)
		return j.reopen(srcPath, fmt.Errorf("failed to backup original: %w", err))
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return j.reopen(srcPath, fmt.Errorf("failed to replace database: %w", err))
	}
	os.Remove(backupPath)

	if err := j.reopen(srcPath, nil); err != nil {
		return err
	}
	j.logger.Info("journal compacted", zap.String("path", srcPath))
	return nil
}

// reopen reopens the database after Compact closed it and returns cause,
// or the reopen error if that failed too.
func (j *Journal) reopen(path string, cause error) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: j.timeout})
	if err != nil {
		j.db = nil
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	j.db = db
	return cause
}
