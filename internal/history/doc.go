// Package history persists finished pipeline runs in SQLite.
//
// The store uses the pure-Go modernc.org/sqlite driver with WAL journaling
// and a busy timeout; writes additionally retry on SQLITE_BUSY so the CLI
// and a running API server can share one database file. The schema is
// embedded and versioned: a database created by a different schema version
// is rejected with ErrSchemaMismatch rather than migrated in place.
package history
