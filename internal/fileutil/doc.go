// Package fileutil implements the durable file operations the blob store is
// built on: atomic replace, tolerant delete, and directory listing.
//
// All operations go through an afero.Fs so that callers can substitute an
// in-memory or fault-injecting filesystem.
package fileutil
