package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// PostgresStore reads the catalog and daily usage from a Postgres database.
//
// Expected tables:
//
//	permits(permit_id text primary key, payload jsonb)
//	usage_daily(wap_id text, date date, water_use double precision)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres creates a store backed by a pgx pool
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool resources
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const listPermitsSQL = `
    SELECT permit_id, payload
    FROM permits
    ORDER BY permit_id
`

// Permits implements PermitSource
func (s *PostgresStore) Permits(ctx context.Context) ([]domain.PermitRecord, error) {
	rows, err := s.pool.Query(ctx, listPermitsSQL)
	if err != nil {
		return nil, fmt.Errorf("query permits: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PermitRecord, 0)
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan permit: %w", err)
		}
		var r domain.PermitRecord
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode permit %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const usageSQL = `
    SELECT date, water_use
    FROM usage_daily
    WHERE wap_id = $1
      AND ($2::date IS NULL OR date >= $2)
      AND ($3::date IS NULL OR date <= $3)
    ORDER BY date
`

// Usage implements UsageStore
func (s *PostgresStore) Usage(ctx context.Context, wapID string, from, to time.Time) ([]domain.UsageReading, error) {
	rows, err := s.pool.Query(ctx, usageSQL, wapID, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, fmt.Errorf("query usage for %s: %w", wapID, err)
	}
	defer rows.Close()

	var out []domain.UsageReading
	for rows.Next() {
		var (
			d     time.Time
			value float64
		)
		if err := rows.Scan(&d, &value); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		out = append(out, domain.UsageReading{WapID: wapID, Date: domain.Day(d), WaterUse: value})
	}
	return out, rows.Err()
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
