// Package store defines the persistence contract for finished reports.
// Implementations live under internal/platform (PostgreSQL and Redis) and
// return the sentinel errors declared here so callers never depend on a
// driver's error types.
package store
