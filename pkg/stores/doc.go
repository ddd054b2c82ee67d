// Package stores persists evaluation history in SQLite. Each eval or
// validate run is recorded with the digest of its declaration file, its
// outcome and the diagnostics it produced. The schema is managed with
// embedded migrations and the database runs in WAL mode.
package stores
