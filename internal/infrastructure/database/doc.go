// Package database provides the SQLite store for device-local state.
//
// Today that state is the offline spool: telemetry that could not reach
// cloud4rpi is kept here and replayed when the link returns.
//
// The connection runs in WAL mode with a busy timeout and a single writer.
// The file is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations live in the top-level migrations package as
// YYYYMMDD_HHMMSS_description.up.sql files embedded into the binary. They
// only move forward; each runs in its own transaction and SchemaVersion
// reports the last one applied.
package database
