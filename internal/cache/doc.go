// Package cache implements the persistent, schema-versioned project cache
// and its timestamp-based freshness check.
//
// The cache exists so previously opened projects reopen instantly. It is a
// best-effort accelerator and never a source of truth: every read failure
// degrades to a cache miss and every write failure is swallowed after
// logging. The only recovery logic is for storage-quota pressure, where the
// oldest cached projects are evicted and the write retried once.
//
// Two logical tables hold the data: project metadata keyed by path, and
// bank snapshots keyed by path + ":" + bankId. The schema version lives in
// SQLite's user_version pragma; opening a database with an older version
// runs registered migration steps (the v1 single-table layout is simply
// dropped).
package cache
