// Package testdb opens throwaway databases for store tests.
//
// SQLite databases live in t.TempDir. Postgres and Redis are opt-in through
// JUSTICE_TEST_DATABASE_URL and JUSTICE_TEST_REDIS_ADDR; when unset, or when the
// server is unreachable outside CI, the calling test is skipped.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"justice/cmd/internal/sqlitedb"
	"justice/migrations"
)

const (
	PostgresURLEnv = "JUSTICE_TEST_DATABASE_URL"
	RedisAddrEnv   = "JUSTICE_TEST_REDIS_ADDR"
)

// SQLite returns a migrated database in a temporary directory.
func SQLite(t testing.TB) *sql.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlitedb.Open(ctx, filepath.Join(t.TempDir(), "justice.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.ApplySQLite(ctx, db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

// Postgres returns a pool plus a fresh migrated schema that is dropped on cleanup.
func Postgres(t testing.TB) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(PostgresURLEnv))
	if raw == "" {
		t.Skipf("integration test skipped: %s is not set", PostgresURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: postgres unreachable: %v", err)
		}
		t.Fatalf("ping postgres: %v", err)
	}

	schema := "justice_it_" + strings.ToLower(ulid.Make().String())
	if err := migrations.ApplyPostgres(ctx, pool, schema); err != nil {
		pool.Close()
		t.Fatalf("migrate postgres: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		pool.Close()
	})
	return pool, schema
}

// Redis returns a client and a unique key prefix. Keys under the prefix are
// removed on cleanup.
func Redis(t testing.TB) (*redis.Client, string) {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv(RedisAddrEnv))
	if addr == "" {
		t.Skipf("integration test skipped: %s is not set", RedisAddrEnv)
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: redis unreachable: %v", err)
		}
		t.Fatalf("ping redis: %v", err)
	}

	prefix := "justice_it:" + strings.ToLower(ulid.Make().String()) + ":"
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			_ = rdb.Del(ctx, iter.Val()).Err()
		}
		_ = rdb.Close()
	})
	return rdb, prefix
}

func shouldSkip(err error) bool {
	if err == nil || os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
