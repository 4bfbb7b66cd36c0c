//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pms/pms/internal/platform/db"
)

const (
	defaultImage = "postgres:16-alpine"
	readyTimeout = 30 * time.Second
)

// startPostgresContainer returns a connection string for a throwaway
// database. PMS_TEST_DATABASE_URL points the suite at an existing server
// instead; otherwise a container is started with the Docker CLI
// (PMS_TEST_PG_IMAGE overrides the image) and removed by cleanup.
func startPostgresContainer(ctx context.Context) (string, func(), error) {
	if url := os.Getenv("PMS_TEST_DATABASE_URL"); url != "" {
		return url, func() {}, nil
	}

	image := os.Getenv("PMS_TEST_PG_IMAGE")
	if image == "" {
		image = defaultImage
	}

	// Docker picks the host port; it is read back below.
	out, err := docker(ctx, "run", "-d", "--rm",
		"--label", "pms-integration=1",
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=pms",
		"-e", "POSTGRES_PASSWORD=pms",
		"-e", "POSTGRES_DB=pms_test",
		image,
	)
	if err != nil {
		return "", nil, err
	}
	id := out
	cleanup := func() { docker(context.Background(), "rm", "-f", id) }

	binding, err := docker(ctx, "port", id, "5432/tcp")
	if err != nil {
		cleanup()
		return "", nil, err
	}
	// "127.0.0.1:49154", possibly followed by an IPv6 binding line.
	hostPort := strings.SplitN(binding, "\n", 2)[0]

	connStr := fmt.Sprintf("postgres://pms:pms@%s/pms_test?sslmode=disable", hostPort)
	if err := waitForPostgres(ctx, connStr); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("wait for postgres in %s: %w", id[:12], err)
	}
	return connStr, cleanup, nil
}

func docker(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("docker %s: %w\n%s", args[0], err, out)
	}
	return strings.TrimSpace(string(out)), nil
}

// waitForPostgres retries db.NewPool, which pings, until the server answers.
func waitForPostgres(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(readyTimeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pool, err := db.NewPool(attemptCtx, db.PoolConfig{DatabaseURL: connStr, MaxConns: 1})
		cancel()
		if err == nil {
			pool.Close()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("not ready after %v: %w", readyTimeout, lastErr)
}
