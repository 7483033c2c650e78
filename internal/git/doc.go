// Package git reports whether a storage root sits inside a git work tree.
//
// Encrypted blobs are useless without the device identity, but a root that
// is tracked or not ignored still leaks file names and change history, so
// the status command warns about it.
package git
