// Package sqlengine provides a SQL implementation of metamodel.SnapshotStore.
//
// Snapshot records are kept in a single table keyed by snapshot name. Statements are rendered
// with goqu for either the postgres or the sqlite3 dialect and executed through one of the
// supported database adapters (pgx, sql.DB, sqlx).
//
// Usage examples:
//
//	// PostgreSQL through pgx
//	pool, _ := pgxpool.New(ctx, dsn)
//	store, _ := sqlengine.NewSnapshotStoreFromPGXPool(pool, sqlengine.WithTableName("forest_snapshots"))
//	_ = store.CreateTable(ctx)
//
//	// SQLite through database/sql
//	db, _ := sql.Open("sqlite", "snapshots.db")
//	store, _ := sqlengine.NewSnapshotStoreFromSQLDB(db, sqlengine.WithDialect(sqlengine.DialectSQLite))
//
//	mm, _ := metamodel.New(ctx, "forest.lp", metamodel.WithSnapshotStore(store))
package sqlengine
