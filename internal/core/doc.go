// Package core provides the securestore manager, the single entry point
// that ties the encrypted blob store, the directory watcher and the audit
// journal together.
//
// Manager operations:
//   - Store/Retrieve/Delete/Exists/List: blob operations by id
//   - IsWatcherActive/WatcherErr: health of the optional directory watcher
//   - Close: stops the watcher, flushes the journal and wipes the key
//
// A nil or closed Manager fails every operation with ErrNotInitialized and
// touches nothing on disk.
package core
