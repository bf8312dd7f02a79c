// Package postgres implements the pipeline stores on PostgreSQL using pgx.
//
// It mirrors the sqlite package table for table. Page upserts are written
// with a single pgx.Batch inside a transaction that row-locks the page's
// existing records; untranslated tokens live in a text[] column with a GIN
// index so gap and requeue queries stay in SQL. The lease is a conditional
// upsert, so it is safe for processes on different hosts.
package postgres
