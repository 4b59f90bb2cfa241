package config

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func NewPostgres(ctx context.Context, cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return db, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}
