// Package database provides the SQLite connection used by the audit trail.
//
// It opens the database with WAL journaling and a busy timeout, keeps a
// single connection (SQLite has one writer), and applies forward-only
// migrations read from an fs.FS, normally the embedded migrations package.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. Applied versions are recorded in
// schema_migrations.
package database
