// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx driver. Tasks carry a version column for
// optimistic concurrency; the schema is managed with embedded goose
// migrations.
package postgres
