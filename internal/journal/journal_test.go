package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap/zaptest"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, Logger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func TestOpen_Initializes(t *testing.T) {
	j, path := openTestJournal(t)
	assert.Equal(t, path, j.Path())

	created, err := j.Created()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)

	n, err := j.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestOpen_Locked(t *testing.T) {
	_, path := openTestJournal(t)

	_, err := Open(path, Timeout(50*time.Millisecond))
	require.ErrorIs(t, err, ErrLocked)
}

func TestOpen_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(ConfigBucket)
		if err != nil {
			return err
		}
		return b.Put(ConfigVersion, []byte("99"))
	}))
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.ErrorIs(t, err, ErrBadVersion)
}

func TestDeviceID_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)

	_, err = j.DeviceID()
	require.ErrorIs(t, err, ErrNotFound)

	id, err := j.GetOrCreateDeviceID()
	require.NoError(t, err)
	assert.Len(t, id, 2*deviceIDSize)

	again, err := j.Identity()
	require.NoError(t, err)
	assert.Equal(t, id, again)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	reopened, err := j.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, reopened)
}

func TestJournal_IsIdentitySource(t *testing.T) {
	j, _ := openTestJournal(t)

	k1, err := crypto.NewKDF().Derive(j, crypto.KeySize)
	require.NoError(t, err)
	k2, err := crypto.NewKDF().Derive(j, crypto.KeySize)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestAppendAndEvents(t *testing.T) {
	j, _ := openTestJournal(t)

	for i := 0; i < 5; i++ {
		seq, err := j.Append(Entry{Kind: KindStore, ID: fmt.Sprintf("id-%d", i)})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), seq)
	}

	all, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, fmt.Sprintf("id-%d", i), e.ID)
		assert.False(t, e.Time.IsZero())
	}

	last, err := j.Events(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "id-3", last[0].ID)
	assert.Equal(t, "id-4", last[1].ID)
}

func TestAppendBatch(t *testing.T) {
	j, _ := openTestJournal(t)

	require.NoError(t, j.AppendBatch(nil))
	require.NoError(t, j.AppendBatch([]Entry{
		{Kind: KindWatch, Path: "/root", Name: "f.txt", Mask: 0x100},
		{Kind: KindWatch, Path: "/root", Name: "f.txt", Mask: 0x8, Labels: []string{"CLOSE_WRITE"}},
	}))

	events, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(0x100), events[0].Mask)
	assert.Equal(t, []string{"CLOSE_WRITE"}, events[1].Labels)
	assert.Equal(t, uint64(2), events[1].Seq)
}

func TestPruneAndCompact(t *testing.T) {
	j, path := openTestJournal(t)

	id, err := j.GetOrCreateDeviceID()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := j.Append(Entry{Kind: KindStore, ID: fmt.Sprintf("blob-%03d", i)})
		require.NoError(t, err)
	}

	removed, err := j.Prune(10)
	require.NoError(t, err)
	assert.Equal(t, 90, removed)

	removed, err = j.Prune(10)
	require.NoError(t, err)
	assert.Zero(t, removed)

	require.NoError(t, j.Compact())
	_, err = os.Stat(path + ".compact")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(err))

	events, err := j.Events(0)
	require.NoError(t, err)
	require.Len(t, events, 10)
	assert.Equal(t, "blob-090", events[0].ID)

	// Sequence numbers keep increasing after compaction.
	seq, err := j.Append(Entry{Kind: KindDelete, ID: "blob-000"})
	require.NoError(t, err)
	assert.Equal(t, uint64(101), seq)

	after, err := j.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, after)
}

func TestClosed(t *testing.T) {
	j, _ := openTestJournal(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err := j.Append(Entry{Kind: KindStore})
	require.ErrorIs(t, err, ErrClosed)
	_, err = j.Events(0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, j.Compact(), ErrClosed)
}
