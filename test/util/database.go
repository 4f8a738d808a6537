// Package util provides shared test helpers for database-backed tests.
package util

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/skyvault/skyvault/pkg/database"
)

var (
	// Shared base configuration for all tests in the package.
	sharedCfg     database.Config
	containerOnce sync.Once
	containerErr  error
)

// SetupTestPool creates a dedicated database for the test, runs migrations
// against it, and returns a connected pool. Both CI and local dev create a
// per-test database for isolation:
//   - CI: connects to an external PostgreSQL service via CI_DATABASE_URL
//   - Local: uses a shared testcontainer, started once per package
func SetupTestPool(t *testing.T) *database.Pool {
	ctx := context.Background()
	base := getOrCreateSharedDatabase(t)

	dbName := GenerateDatabaseName(t)

	// Create the per-test database over a short-lived admin connection.
	admin, err := stdsql.Open("pgx", base.DSN())
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName))
	require.NoError(t, err)
	t.Logf("Created test database: %s", dbName)

	cfg := base
	cfg.Database = dbName
	pool, err := database.NewPool(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, err := admin.ExecContext(context.Background(),
			fmt.Sprintf("DROP DATABASE IF EXISTS %s WITH (FORCE)", dbName))
		if err != nil {
			t.Logf("Warning: failed to drop database %s: %v", dbName, err)
		}
		_ = admin.Close()
	})

	return pool
}

// getOrCreateSharedDatabase returns the base connection configuration. In
// CI this parses CI_DATABASE_URL; locally it starts a shared testcontainer
// once.
func getOrCreateSharedDatabase(t *testing.T) database.Config {
	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		cfg, err := parseDatabaseURL(ciURL)
		require.NoError(t, err)
		return cfg
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer for all tests")

		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}

		host, err := pgContainer.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get container host: %w", err)
			return
		}
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		if err != nil {
			containerErr = fmt.Errorf("failed to get mapped port: %w", err)
			return
		}

		sharedCfg = database.Config{
			Host:           host,
			Port:           port.Int(),
			User:           "test",
			Password:       "test",
			Database:       "test",
			SSLMode:        "disable",
			MinConns:       1,
			MaxConns:       5,
			AcquireTimeout: 10 * time.Second,
		}
		t.Logf("Shared container ready: %s:%d", host, port.Int())
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedCfg
}

// GenerateDatabaseName creates a unique, PostgreSQL-safe database name.
// Format: test_<sanitized_test_name>_<random_hex>
func GenerateDatabaseName(t *testing.T) string {
	name := strings.ToLower(t.Name())
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)

	// Stay well under PostgreSQL's 63 char identifier limit.
	if len(name) > 40 {
		name = name[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}
	return fmt.Sprintf("test_%s_%s", name, hex.EncodeToString(randomBytes))
}

// parseDatabaseURL maps a postgres:// URL onto the database config.
func parseDatabaseURL(raw string) (database.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return database.Config{}, fmt.Errorf("invalid database URL: %w", err)
	}
	port := 5432
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return database.Config{}, fmt.Errorf("invalid port in database URL: %w", err)
		}
	}
	password, _ := u.User.Password()
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}
	return database.Config{
		Host:           u.Hostname(),
		Port:           port,
		User:           u.User.Username(),
		Password:       password,
		Database:       strings.TrimPrefix(u.Path, "/"),
		SSLMode:        sslMode,
		MinConns:       1,
		MaxConns:       5,
		AcquireTimeout: 10 * time.Second,
	}, nil
}
