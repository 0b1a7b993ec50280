// Package database provides SQLite-based storage for harvest.
//
// The CatalogDB stores:
//   - categories with their latest completeness counts
//   - the deduplicated listing catalog
//   - lookup results, one row per lookup item
//   - run reports for history
//
// Design decision: We use SQLite (via modernc.org/sqlite) because the
// database is a single file and the CGO-free driver keeps cross-compilation
// simple. WAL mode lets the history command read while a run writes.
package database
