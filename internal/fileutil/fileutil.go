package fileutil

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const dirPerm = 0700

// FS performs durable file operations on an afero.Fs.
type FS struct {
	fs     afero.Fs
	logger *zap.Logger
}

// New wraps fsys. A nil fsys selects the OS filesystem; a nil logger
// disables logging.
func New(fsys afero.Fs, logger *zap.Logger) *FS {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FS{fs: fsys, logger: logger}
}

// Afero returns the underlying filesystem.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// AtomicWrite replaces path with data. The data is written to a temporary
// file in the same directory, synced, and renamed over path, so readers see
// either the old content or the new content. On failure path is untouched.
func (f *FS) AtomicWrite(path string, data []byte) error {
	if path == "" {
		return ErrEmptyPath
	}

	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", ErrOpen, path, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		if rerr := f.fs.Remove(tmpName); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			f.logger.Warn("failed to remove temp file", zap.String("path", tmpName), zap.Error(rerr))
		}
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: sync %s: %w", ErrWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %w", ErrWrite, path, err)
	}
	if err := f.fs.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: %s: %w", ErrRename, path, err)
	}

	f.syncDir(dir)
	return nil
}

// syncDir makes a completed rename durable. Failure is logged and ignored:
// the data itself is already on disk.
func (f *FS) syncDir(dir string) {
	d, err := f.fs.Open(dir)
	if err != nil {
		f.logger.Debug("failed to open directory for sync", zap.String("dir", dir), zap.Error(err))
		return
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		f.logger.Debug("failed to sync directory", zap.String("dir", dir), zap.Error(err))
	}
}

// Read returns the full contents of path. A missing file yields an error
// matching both ErrOpen and fs.ErrNotExist.
func (f *FS) Read(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	file, err := f.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}
	defer file.Close()

	data, err := afero.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}
	return data, nil
}

// Delete removes path. Removing a file that does not exist succeeds.
func (f *FS) Delete(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if err := f.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrRemove, path, err)
	}
	return nil
}

// Exists reports whether path exists. Stat errors other than not-exist are
// treated as absent.
func (f *FS) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := f.fs.Stat(path)
	return err == nil
}

// Rename moves oldPath to newPath, replacing newPath if present.
func (f *FS) Rename(oldPath, newPath string) error {
	if oldPath == "" || newPath == "" {
		return ErrEmptyPath
	}
	if err := f.fs.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("%w: %s -> %s: %w", ErrRename, oldPath, newPath, err)
	}
	return nil
}

// ListRegularFiles returns the sorted base names of the regular files in dir.
// Subdirectories, symlinks and other special files are skipped.
func (f *FS) ListRegularFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, ErrEmptyPath
	}

	infos, err := afero.ReadDir(f.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrList, dir, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

// MkdirAll creates dir and any missing parents with owner-only permissions.
func (f *FS) MkdirAll(dir string) error {
	if dir == "" {
		return ErrEmptyPath
	}
	if err := f.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMkdir, dir, err)
	}
	return nil
}

// IsDir reports whether path exists and is a directory.
func (f *FS) IsDir(path string) bool {
	info, err := f.fs.Stat(path)
	return err == nil && info.IsDir()
}
