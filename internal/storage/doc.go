// Package storage keeps an append-only audit trail of delivery outcomes.
//
// The trail is for diagnostics only. Nothing reads it back to retry or
// deduplicate deliveries.
//
// Drivers:
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "file": JSON Lines file, no dependencies
package storage
