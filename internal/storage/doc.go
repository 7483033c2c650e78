// Package storage provides the encrypted blob store for securestore.
//
// Each blob is kept as up to three files under the store root:
//   - <id>.enc: the current envelope
//   - <id>.enc.bak: the previous generation, used when the main file is
//     missing or fails authentication
//   - <id>.enc.tmp: the write buffer, only present during Store
//
// Store writes the new envelope to the temp file, moves the current main
// file to the backup slot and renames the temp file into place. A crash at
// any point leaves either the new or the previous generation readable, and
// Retrieve promotes the backup back to main when needed.
//
// The store performs no locking. Concurrent writers to the same id must
// synchronize externally.
package storage
