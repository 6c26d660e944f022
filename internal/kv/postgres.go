package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Postgres stores the markers in the kv_store table (see migrations/).
type Postgres struct {
	db *sqlx.DB
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// opens a PostgreSQL connection, retrying while the database comes up.
func OpenPostgres(databaseURL string) (*sqlx.DB, error) {
	const maxRetries = 10
	const retryInterval = 2 * time.Second
	var err error
	var db *sqlx.DB

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sqlx.Connect("postgres", databaseURL)
		if err == nil {
			log.Info().Msg("connected to database")
			return db, nil
		}

		log.Error().Err(err).
			Int("attempt", attempt).
			Msgf("failed to connect to database, retrying in %s", retryInterval)

		time.Sleep(retryInterval)
	}

	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", maxRetries, err)
}

// finds all “*.up.sql” files in migrationsPath (sorted by name)
// and executes them in order. “*.down.sql” files are ignored.
func RunMigrations(db *sqlx.DB, migrationsPath string) error {
	pattern := filepath.Join(migrationsPath, "*.up.sql")
	files, err := filepath.Glob(pattern)
	if err != nil {
		log.Error().Msg("failed to list up migrations")
		return fmt.Errorf("failed to glob migrations: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	sort.Strings(files)

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			log.Error().Str("file", file).Msg("failed to read migration file")
			return fmt.Errorf("could not read migration %q: %w", file, err)
		}
		sqlStmt := string(sqlBytes)
		if sqlStmt == "" {
			continue
		}
		if _, err := db.Exec(sqlStmt); err != nil {
			return fmt.Errorf("error executing migration %q: %w", file, err)
		}
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = $1;`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("kv Get failed")
		return "", err
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
	INSERT INTO kv_store (key, value, updated_at)
	VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`, key, value)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("kv Set failed")
	}
	return err
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = $1;`, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("kv Remove failed")
	}
	return err
}
