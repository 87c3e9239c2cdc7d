// Package testdb opens the PostgreSQL database used by integration tests.
//
// Tests call Open, which skips the test unless SCRY_TEST_DB_URL or
// DATABASE_URL is set, applies the embedded migrations and closes the
// connection when the test ends. Integration tests carry the "integration"
// build tag:
//
//	go test -tags=integration ./internal/platform/postgres/...
package testdb
