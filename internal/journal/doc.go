// Package journal provides the BBolt-backed audit journal for securestore.
//
// Database structure uses two buckets:
//   - config: version, creation time and the generated device id
//   - events: sequence-keyed JSON entries describing store activity and
//     filesystem events seen by the watcher
//
// The journal lives outside the storage root so that its own writes never
// show up as watcher events. Its device id doubles as an identity source
// for hosts without a stable machine id.
package journal
