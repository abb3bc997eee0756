// Package storage persists summoners and the per-match participant rows the
// live-game view aggregates.
//
// Two drivers are supported:
//   - "sqlite": a local database file (modernc.org/sqlite, no cgo)
//   - "postgres": a shared database through gorm
package storage
