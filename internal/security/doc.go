// Package security validates the names and paths securestore accepts from
// callers, so that no blob id can address a file outside the storage root
// or collide with the store's own bookkeeping files.
package security
