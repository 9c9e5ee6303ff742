// Package adapters hides the differences between pgx.Pool, sql.DB and sqlx.DB behind one
// DBAdapter interface, so the SQL snapshot store runs unchanged on any of them.
package adapters
