package identity

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	values []string
	errs   []error
	calls  int
}

func (c *countingSource) Identity() (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return "", c.errs[i]
	}
	return c.values[i], nil
}

func TestStatic(t *testing.T) {
	id, err := Static("serial-000123456").Identity()
	require.NoError(t, err)
	assert.Equal(t, "serial-000123456", id)

	_, err = Static("").Identity()
	require.ErrorIs(t, err, ErrEmptyIdentity)
}

func TestFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/id", []byte("  abc123\n"), 0600))
	require.NoError(t, afero.WriteFile(fsys, "/etc/blank", []byte(" \n\t"), 0600))

	id, err := NewFile("/etc/id", fsys).Identity()
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)

	_, err = NewFile("/etc/blank", fsys).Identity()
	require.ErrorIs(t, err, ErrEmptyIdentity)

	_, err = NewFile("/etc/missing", fsys).Identity()
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFile_OS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device-id")
	require.NoError(t, os.WriteFile(path, []byte("from-disk\n"), 0600))

	id, err := NewFile(path, nil).Identity()
	require.NoError(t, err)
	assert.Equal(t, "from-disk", id)
}

func TestMachineID(t *testing.T) {
	t.Run("etc preferred", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/etc/machine-id", []byte("etc-id\n"), 0444))
		require.NoError(t, afero.WriteFile(fsys, "/var/lib/dbus/machine-id", []byte("dbus-id\n"), 0444))

		id, err := MachineID(fsys).Identity()
		require.NoError(t, err)
		assert.Equal(t, "etc-id", id)
	})

	t.Run("dbus fallback", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/var/lib/dbus/machine-id", []byte("dbus-id\n"), 0444))

		id, err := MachineID(fsys).Identity()
		require.NoError(t, err)
		assert.Equal(t, "dbus-id", id)
	})

	t.Run("empty etc falls through", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "/etc/machine-id", []byte("\n"), 0444))
		require.NoError(t, afero.WriteFile(fsys, "/var/lib/dbus/machine-id", []byte("dbus-id"), 0444))

		id, err := MachineID(fsys).Identity()
		require.NoError(t, err)
		assert.Equal(t, "dbus-id", id)
	})

	t.Run("none", func(t *testing.T) {
		_, err := MachineID(afero.NewMemMapFs()).Identity()
		require.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestFirst_NoSources(t *testing.T) {
	_, err := (&First{}).Identity()
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestCached(t *testing.T) {
	transient := errors.New("not yet")
	src := &countingSource{
		values: []string{"", "first", "second"},
		errs:   []error{transient},
	}
	c := NewCached(src)

	_, err := c.Identity()
	require.ErrorIs(t, err, transient)

	id, err := c.Identity()
	require.NoError(t, err)
	assert.Equal(t, "first", id)

	id, err = c.Identity()
	require.NoError(t, err)
	assert.Equal(t, "first", id)
	assert.Equal(t, 2, src.calls)

	_, err = NewCached(nil).Identity()
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSourcesDriveKDF(t *testing.T) {
	k := crypto.NewKDF()

	a, err := k.Derive(Static("device-a"), crypto.KeySize)
	require.NoError(t, err)
	b, err := k.Derive(NewCached(Static("device-a")), crypto.KeySize)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = k.Derive(MachineID(afero.NewMemMapFs()), crypto.KeySize)
	require.ErrorIs(t, err, ErrUnavailable)
}
