// Package storage persists scheduled reminder tasks.
//
// Drivers:
//   - "memory": process-local map (tests, dry runs)
//   - "file":   dependency-free snapshot + append-only journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//
// A task's presence in the store is its pending state; Delete is the
// terminal delivered state.
package storage
