package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// TestDB represents a test database connection
type TestDB struct {
	Pool *pgxpool.Pool
}

// NewTestDB connects to TEST_DATABASE_URL and applies the migrations
func NewTestDB(t *testing.T, dsn string) *TestDB {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, Migrate(dsn, logger), "Failed to migrate test database")

	pool, err := Connect(ctx, dsn, ConnectOptions{Attempts: 1}, logger)
	require.NoError(t, err, "Failed to connect to test database")

	return &TestDB{Pool: pool}
}

// Cleanup removes all test data from the database
func (db *TestDB) Cleanup(t *testing.T) {
	t.Helper()
	_, err := db.Pool.Exec(context.Background(), "TRUNCATE lifecycle_entities")
	require.NoError(t, err, "Failed to truncate lifecycle_entities table")
}

// RunTest runs a test with database setup and cleanup
func RunTest(t *testing.T, testFunc func(t *testing.T, db *TestDB)) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db := NewTestDB(t, dsn)
	defer db.Pool.Close()

	db.Cleanup(t)
	testFunc(t, db)
}
