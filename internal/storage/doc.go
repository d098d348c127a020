// Package storage persists scheduled posts and linked social accounts.
//
// Drivers:
//   - "memory": process-local maps (tests, dry runs)
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "postgres": PostgreSQL through pgx's database/sql driver
//
// Timestamps are stored as unix milliseconds so due-ordering is a plain
// integer comparison on every driver.
package storage
