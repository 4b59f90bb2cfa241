package geofence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"food-delivery/tracking/models"
)

var _ Repository = (*PostgresRepository)(nil)

const schema = `CREATE TABLE IF NOT EXISTS geofences (
	id         UUID PRIMARY KEY,
	name       TEXT NOT NULL,
	ring       JSONB NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create geofences table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) Insert(ctx context.Context, zone *models.Zone) error {
	ring, err := json.Marshal(zone.Ring)
	if err != nil {
		return fmt.Errorf("marshal ring: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO geofences (id, name, ring, created_by, created_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		zone.ID, zone.Name, string(ring), zone.CreatedBy, zone.CreatedAt,
	)
	return err
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.Zone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, ring, created_by, created_at FROM geofences ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var zones []models.Zone
	for rows.Next() {
		var (
			z         models.Zone
			ring      []byte
			createdAt time.Time
		)
		if err := rows.Scan(&z.ID, &z.Name, &ring, &z.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(ring, &z.Ring); err != nil {
			slog.Warn("skipping geofence with malformed ring", "zone_id", z.ID, "error", err)
			continue
		}
		z.CreatedAt = createdAt
		zones = append(zones, z)
	}
	return zones, rows.Err()
}
