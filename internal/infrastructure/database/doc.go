// Package database opens the SQLite store behind Gatekeeper and applies its
// schema migrations.
//
// One connection is kept open so writes to the lockout counters are
// serialised by the driver. WithTx, IsTimeout and IsUniqueViolation let the
// repositories in other packages share transaction handling and driver error
// classification.
//
//	db, err := database.Open(ctx, database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_name.up.sql with an optional
// matching .down.sql, and are registered by the migrations package.
package database
