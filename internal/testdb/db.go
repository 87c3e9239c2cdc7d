package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/scry-reports/internal/platform/postgres"
	"github.com/phrazzld/scry-reports/internal/redact"
	"github.com/stretchr/testify/require"
)

// Timeout bounds connection and migration work during setup.
const Timeout = 30 * time.Second

// urlEnvVars are consulted in order.
var urlEnvVars = []string{"SCRY_TEST_DB_URL", "DATABASE_URL", "SCRY_DATABASE_URL"}

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, name := range urlEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ShouldSkip reports whether no test database is configured.
func ShouldSkip() bool {
	return DatabaseURL() == ""
}

// Open connects to the test database, migrates it to the latest version and
// registers cleanup. The test is skipped when no database is configured.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		t.Skip("SCRY_TEST_DB_URL or DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	db, err := postgres.Open(ctx, url)
	require.NoError(t, err, "failed to connect to %s", redact.String(url))
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, postgres.Migrate(ctx, db, "up", quiet), "failed to migrate test database")
	return db
}

// Exec runs statements against db and fails the test on the first error.
func Exec(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err, "statement failed: %s", stmt)
	}
}
