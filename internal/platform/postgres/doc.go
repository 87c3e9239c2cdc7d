// Package postgres implements store.ReportStore on PostgreSQL through
// database/sql and the pgx stdlib driver. It also owns the embedded goose
// migrations for the reports schema.
package postgres
