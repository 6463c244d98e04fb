package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
)

// CreateClientsTable is applied by Migrate so a fresh database needs no
// separate migration tool.
const CreateClientsTable = `
	CREATE TABLE IF NOT EXISTS api_clients (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		api_key_hash   TEXT NOT NULL,
		api_key_prefix TEXT NOT NULL UNIQUE,
		revoked        BOOLEAN NOT NULL DEFAULT false,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Store provides access to the PostgreSQL database for API client CRUD.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres through the pgx driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return db, nil
}

// Migrate creates the api_clients table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, CreateClientsTable); err != nil {
		return fmt.Errorf("Migrate: %w", err)
	}
	return nil
}
