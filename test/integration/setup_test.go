//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pms/pms/internal/platform/db"
)

// testDB holds the shared database infrastructure for integration tests.
type testDB struct {
	Pool    *pgxpool.Pool
	ConnStr string
}

// globalDB is the package-level test database, initialized once in TestMain.
var globalDB *testDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	tdb, cleanup, err := setupPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	globalDB = tdb
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupPostgresContainer starts a Postgres 16 container with the Docker CLI
// and opens a pool against it the same way the server does.
func setupPostgresContainer(ctx context.Context) (*testDB, func(), error) {
	connStr, cleanup, err := startPostgresContainer(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{DatabaseURL: connStr, MaxConns: 5, MinConns: 1})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &testDB{
		Pool:    pool,
		ConnStr: connStr,
	}, func() {
		pool.Close()
		cleanup()
	}, nil
}

// dropCollection removes one collection row so tests stay independent.
func dropCollection(t *testing.T, ctx context.Context, name string) {
	t.Helper()
	_, err := globalDB.Pool.Exec(ctx, `DELETE FROM patient_collection WHERE name = $1`, name)
	if err != nil {
		t.Logf("warning: failed to drop collection %s: %v", name, err)
	}
}
