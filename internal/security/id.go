package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

const MaxIDLength = 200

var (
	ErrEmptyID       = errors.New("empty id not allowed")
	ErrIDTooLong     = errors.New("id too long")
	ErrIDSeparator   = errors.New("id contains a path separator")
	ErrIDNull        = errors.New("id contains a NUL byte")
	ErrIDTraversal   = errors.New("id contains '..'")
	ErrIDHidden      = errors.New("id must not start with '.'")
	ErrIDReserved    = errors.New("id ends with a reserved suffix")
	ErrPathEscapes   = errors.New("path escapes root")
	ErrPathInsideDir = errors.New("path is inside directory")
)

// reservedSuffixes are the extensions the store uses for its own files.
// An id ending in one of them would be indistinguishable from a blob file
// when listing.
var reservedSuffixes = []string{".enc", ".bak", ".tmp"}

// ValidateID checks that id can be used as a single file name component
// inside the storage root. It rejects:
// - Empty ids and ids longer than MaxIDLength bytes
// - '/', '\' and NUL anywhere
// - Any '..' substring
// - A leading '.', which would hide the file and clash with temp files
// - The .enc, .bak and .tmp suffixes
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: %d bytes, max %d", ErrIDTooLong, len(id), MaxIDLength)
	}
	if strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrIDSeparator, id)
	}
	if strings.IndexByte(id, 0) >= 0 {
		return ErrIDNull
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrIDTraversal, id)
	}
	if strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrIDHidden, id)
	}
	for _, suffix := range reservedSuffixes {
		if strings.HasSuffix(id, suffix) {
			return fmt.Errorf("%w: %q", ErrIDReserved, id)
		}
	}
	return nil
}

// JoinID returns the path of id with suffix inside root after validating id.
// The result is verified to stay directly under root.
func JoinID(root, id, suffix string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	path := filepath.Join(root, id+suffix)
	if filepath.Dir(path) != filepath.Clean(root) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapes, id)
	}
	return path, nil
}

// IsWithin reports whether path is dir or lies below it, after making both
// absolute and cleaning them lexically.
func IsWithin(dir, path string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, fmt.Errorf("failed to get absolute path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to get absolute path: %w", err)
	}

	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false, nil
	}
	if rel == "." {
		return true, nil
	}
	return filepath.IsLocal(rel), nil
}

// EnsureOutside fails with ErrPathInsideDir when path lies within dir.
func EnsureOutside(dir, path string) error {
	inside, err := IsWithin(dir, path)
	if err != nil {
		return err
	}
	if inside {
		return fmt.Errorf("%w: %s is inside %s", ErrPathInsideDir, path, dir)
	}
	return nil
}
