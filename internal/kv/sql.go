package kv

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
)

const snapshotsTable = "snapshots"

type snapshotRow struct {
	Name      string `db:"name"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

// SQL stores values in a two-column table. It works against any
// database/sql driver goqu has a dialect for.
type SQL struct {
	db      *sql.DB
	dialect string
}

func NewSQL(ctx context.Context, db *sql.DB, dialect string) (*SQL, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Debug().Str("dialect", dialect).Msg("database connection successful")

	if err := migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Msg("migrations completed successfully")

	return &SQL{db: db, dialect: dialect}, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, bool, error) {
	executor := goqu.New(s.dialect, s.db)

	query := executor.From(snapshotsTable).
		Select("name", "value", "updated_at").
		Where(goqu.Ex{"name": key})

	var row snapshotRow
	found, err := query.Executor().ScanStructContext(ctx, &row)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to read snapshot")
		return nil, false, err
	}
	if !found {
		log.Debug().Str("key", key).Msg("snapshot not found")
		return nil, false, nil
	}

	return []byte(row.Value), true, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	executor := goqu.New(s.dialect, s.db)

	now := time.Now().UTC().Format(time.RFC3339)
	query := executor.Insert(snapshotsTable).
		Rows(snapshotRow{Name: key, Value: string(value), UpdatedAt: now}).
		OnConflict(goqu.DoUpdate("name", goqu.Record{
			"value":      string(value),
			"updated_at": now,
		}))

	if _, err := query.Executor().ExecContext(ctx); err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to write snapshot")
		return err
	}

	log.Debug().Str("key", key).Int("bytes", len(value)).Msg("snapshot written")
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`

	_, err := db.ExecContext(ctx, schema)
	return err
}
