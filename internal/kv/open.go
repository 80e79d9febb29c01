package kv

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/abdusco/shrinkly/internal/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const MemoryDSN = "memory:"

// Backend names the store implementation a DSN selects.
func Backend(dsn string) string {
	switch {
	case dsn == MemoryDSN:
		return "memory"
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	case strings.HasPrefix(dsn, "libsql://"), strings.HasPrefix(dsn, "wss://"):
		return "libsql"
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	default:
		return "sqlite"
	}
}

// Open connects to the store named by dsn. Anything that is not a
// recognised URL scheme is treated as a SQLite file path.
func Open(ctx context.Context, dsn string) (Store, error) {
	backend := Backend(dsn)
	l := logger.With("backend", backend)
	l.Debug().Msg("opening snapshot store")

	switch backend {
	case "memory":
		return NewMemory(), nil
	case "redis":
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		store, err := NewRedis(ctx, client)
		if err != nil {
			client.Close()
			return nil, err
		}
		return store, nil
	case "libsql":
		return openSQL(ctx, "libsql", dsn, "sqlite3")
	case "postgres":
		return openSQL(ctx, "pgx", dsn, "postgres")
	default:
		return openSQL(ctx, "sqlite", formatSQLitePath(dsn), "sqlite3")
	}
}

func openSQL(ctx context.Context, driver, dsn, dialect string) (Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store, err := NewSQL(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func formatSQLitePath(path string) string {
	if path == "" {
		path = "shrinkly.db"
	}

	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("cache", "shared")
	params.Set("mode", "rwc")
	params.Set("_time_format", "sqlite")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_busy_timeout", "5000")

	return path + "?" + params.Encode()
}
