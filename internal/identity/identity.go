package identity

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

var (
	ErrEmptyIdentity = errors.New("identity is empty")
	ErrUnavailable   = errors.New("identity unavailable")
)

var (
	_ crypto.IdentitySource = Static("")
	_ crypto.IdentitySource = (*File)(nil)
	_ crypto.IdentitySource = (*First)(nil)
	_ crypto.IdentitySource = (*Cached)(nil)
	_ crypto.IdentitySource = (*Keyring)(nil)
	_ crypto.IdentitySource = (*Prompt)(nil)
)

// Static is a fixed identity.
type Static string

func (s Static) Identity() (string, error) {
	if s == "" {
		return "", ErrEmptyIdentity
	}
	return string(s), nil
}

// File reads the identity from a file on every call. Surrounding whitespace
// is trimmed.
type File struct {
	Path string
	fs   afero.Fs
}

// NewFile creates a File source. A nil fsys selects the OS filesystem.
func NewFile(path string, fsys afero.Fs) *File {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &File{Path: path, fs: fsys}
}

func (f *File) Identity() (string, error) {
	data, err := afero.ReadFile(f.fs, f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	id := string(bytes.TrimSpace(data))
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyIdentity, f.Path)
	}
	return id, nil
}

// machineIDPaths are consulted in order. The boot id is deliberately absent:
// it changes on every boot and would orphan every stored blob.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// MachineID returns a source for the host's machine id.
func MachineID(fsys afero.Fs) *First {
	sources := make([]crypto.IdentitySource, 0, len(machineIDPaths))
	for _, p := range machineIDPaths {
		sources = append(sources, NewFile(p, fsys))
	}
	return &First{Sources: sources}
}

// First returns the identity of the first source that yields one.
type First struct {
	Sources []crypto.IdentitySource
}

func (f *First) Identity() (string, error) {
	var errs error
	for _, src := range f.Sources {
		id, err := src.Identity()
		if err == nil {
			return id, nil
		}
		errs = multierr.Append(errs, err)
	}
	if errs == nil {
		return "", fmt.Errorf("%w: no sources configured", ErrUnavailable)
	}
	return "", fmt.Errorf("%w: %w", ErrUnavailable, errs)
}

// Cached memoizes the first successful identity of Source. Failures are not
// cached, so a transiently unavailable source is retried.
type Cached struct {
	Source crypto.IdentitySource

	mu    sync.Mutex
	value string
	ok    bool
}

// NewCached wraps src.
func NewCached(src crypto.IdentitySource) *Cached {
	return &Cached{Source: src}
}

func (c *Cached) Identity() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ok {
		return c.value, nil
	}
	if c.Source == nil {
		return "", fmt.Errorf("%w: no source", ErrUnavailable)
	}

	id, err := c.Source.Identity()
	if err != nil {
		return "", err
	}
	c.value, c.ok = id, true
	return id, nil
}
