// Package database opens docgate's SQLite file and applies its schema.
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are forward-only *.up.sql files applied in version order,
// each in its own transaction. Repositories share WithTx for multi-statement
// writes and IsUniqueViolation for mapping duplicate keys to their own
// sentinel errors.
package database
