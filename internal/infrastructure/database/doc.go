// Package database provides the SQLite connection used for persisted
// device configuration.
//
// It wraps database/sql with the pragmas that matter for an embedded
// single-writer database (WAL mode, busy timeout, foreign keys) and a
// small migration runner fed from an embedded filesystem.
//
// # Usage
//
//	db, err := database.Open(database.Config{Path: "./data/periph.db", WALMode: true, BusyTimeout: 5})
//	if err != nil { ... }
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil { ... }
package database
