// Package store opens the database that holds the ledger and the
// attachment side-schema, and applies statements to it inside a single
// unit of work.
//
// A UnitOfWork wraps one *sql.Tx. Every statement of a rebuild pass runs on
// it; only the final Apply with finalize=true commits. Any failure rolls the
// whole unit back, so readers never observe a partially built side-schema.
//
// # Database Configuration
//
// SQLite (the default) is opened with:
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - a single connection: the rebuild is the only writer
//
// Postgres is opened through the pgx database/sql driver.
package store
