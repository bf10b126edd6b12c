// Package testutil provides shared postgres and redis fixtures for
// integration tests. Both degrade to t.Skip when the backing service is
// unreachable so the unit suite stays runnable anywhere.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/strand-chat/strand/internal/common/config"
	"github.com/strand-chat/strand/internal/infra/db"
	"github.com/strand-chat/strand/internal/infra/migrations"
	"github.com/stretchr/testify/require"
)

// schemaLockID serializes the schema reset across test binaries sharing one
// database; package tests run in separate processes.
const schemaLockID int64 = 0x73_74_72_61_6E_64

var (
	dbOnce   sync.Once
	sharedDB *db.DB
	dbErr    error
)

// GetDB returns the shared test pool with migrations applied and every
// table empty. The first caller in the process pays for the schema reset.
func GetDB(t *testing.T) *db.DB {
	t.Helper()

	dbOnce.Do(func() {
		sharedDB, dbErr = connectAndMigrate()
	})
	if dbErr != nil {
		t.Skipf("postgres not available: %v", dbErr)
	}

	truncateAll(t, sharedDB.Pool)
	return sharedDB
}

func connectAndMigrate() (*db.DB, error) {
	d, err := db.New(testDBConfig(), nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, schemaLockID); err != nil {
		d.Close()
		return nil, fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, schemaLockID)
	}()

	for _, stmt := range []string{
		`DROP SCHEMA public CASCADE`,
		`CREATE SCHEMA public`,
	} {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			d.Close()
			return nil, fmt.Errorf("reset schema: %w", err)
		}
	}

	if err := migrations.Run(ctx, d.Pool); err != nil {
		d.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return d, nil
}

func testDBConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:            envOr("DB_HOST", "localhost"),
		Port:            envIntOr("DB_PORT", 5432),
		User:            envOr("DB_USER", "postgres"),
		Password:        envOr("DB_PASSWORD", "postgres"),
		Database:        envOr("DB_NAME", "strand_test"),
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 5 * time.Minute,
	}
}

func truncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		TRUNCATE TABLE webhook_events, message_uploads, message_reactions,
			drafts, channel_read_status, messages, threads,
			channel_members, uploads, channels
		CASCADE
	`)
	require.NoError(t, err, "truncate test tables")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
