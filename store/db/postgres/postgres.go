package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/infoagent/infoagent/internal/profile"
	"github.com/infoagent/infoagent/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL connection pool sized for a single-user
// personal assistant.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	driver := &DB{db: db, profile: profile}
	if err := driver.applySchema(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to apply schema")
	}
	return driver, nil
}

func (d *DB) applySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(d.profile.AIDimensions) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement: %s", stmt)
		}
	}
	return nil
}

// schemaStatements returns the bootstrap DDL. The embedding column is
// dimensioned to the configured embedding size; pgvector requires the
// dimension at table creation time.
func schemaStatements(dimensions int) []string {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memory (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			attributes TEXT NOT NULL DEFAULT '{}',
			content_hash TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL DEFAULT 0,
			search_text TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_content_hash ON memory (content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_search_text ON memory USING GIN (to_tsvector('simple', COALESCE(search_text, '')))`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_embedding (
			id SERIAL PRIMARY KEY,
			memory_id INTEGER NOT NULL REFERENCES memory (id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			model TEXT NOT NULL,
			created_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			updated_ts BIGINT NOT NULL DEFAULT EXTRACT(EPOCH FROM NOW()),
			UNIQUE (memory_id, model)
		)`, dimensions),
	}
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) IsInitialized(ctx context.Context) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'memory')`,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check schema")
	}
	return exists, nil
}

// placeholder returns the n-th PostgreSQL placeholder ($1, $2, ...).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n placeholders starting at $1.
func placeholders(n int) string {
	list := []string{}
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
