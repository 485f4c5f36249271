// Package storage holds the durable backends for conversation config sets.
//
// Every driver implements configuration.Store with the same contract:
// whole-aggregate reads and writes, and a version-checked Save that rejects
// stale writers with configuration.ErrVersionConflict.
//
// Drivers:
//   - memory: process-local map (tests, dry runs)
//   - file:   JSON snapshot + append-only JSON Lines journal
//   - sqlite: modernc.org/sqlite database file
//   - badger: embedded badger key/value directory
//   - redis:  shared redis server (multi-instance deployments)
package storage
