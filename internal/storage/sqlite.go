package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS permits (
	permit_id TEXT PRIMARY KEY,
	payload   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS usage_daily (
	wap_id    TEXT NOT NULL,
	date      TEXT NOT NULL,
	water_use REAL NOT NULL,
	PRIMARY KEY (wap_id, date)
);
`

// SQLiteStore is a local key-value file holding permit payloads and a daily
// usage table
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens or creates the store at path
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = path
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutPermits upserts permit records
func (s *SQLiteStore) PutPermits(ctx context.Context, records []domain.PermitRecord) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin permits tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO permits (permit_id, payload) VALUES (?, ?)
ON CONFLICT(permit_id) DO UPDATE SET payload = excluded.payload`)
	if err != nil {
		return fmt.Errorf("prepare permits insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode permit %s: %w", r.PermitID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.PermitID, string(payload)); err != nil {
			return fmt.Errorf("insert permit %s: %w", r.PermitID, err)
		}
	}
	return tx.Commit()
}

// PutUsage upserts daily readings
func (s *SQLiteStore) PutUsage(ctx context.Context, readings []domain.UsageReading) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO usage_daily (wap_id, date, water_use) VALUES (?, ?, ?)
ON CONFLICT(wap_id, date) DO UPDATE SET water_use = excluded.water_use`)
	if err != nil {
		return fmt.Errorf("prepare usage insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.WapID, r.Date.Format(domain.DateLayout), r.WaterUse); err != nil {
			return fmt.Errorf("insert usage %s %s: %w", r.WapID, r.Date.Format(domain.DateLayout), err)
		}
	}
	return tx.Commit()
}

// Permits implements PermitSource
func (s *SQLiteStore) Permits(ctx context.Context) ([]domain.PermitRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT permit_id, payload FROM permits ORDER BY permit_id`)
	if err != nil {
		return nil, fmt.Errorf("query permits: %w", err)
	}
	defer rows.Close()

	var out []domain.PermitRecord
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan permit: %w", err)
		}
		var r domain.PermitRecord
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("decode permit %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Usage implements UsageStore
func (s *SQLiteStore) Usage(ctx context.Context, wapID string, from, to time.Time) ([]domain.UsageReading, error) {
	query := `SELECT date, water_use FROM usage_daily WHERE wap_id = ?`
	args := []any{wapID}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.Format(domain.DateLayout))
	}
	if !to.IsZero() {
		query += ` AND date <= ?`
		args = append(args, to.Format(domain.DateLayout))
	}
	query += ` ORDER BY date`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage for %s: %w", wapID, err)
	}
	defer rows.Close()

	var out []domain.UsageReading
	for rows.Next() {
		var (
			date  string
			value float64
		)
		if err := rows.Scan(&date, &value); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		d, err := domain.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("usage for %s: %w", wapID, err)
		}
		out = append(out, domain.UsageReading{WapID: wapID, Date: d, WaterUse: value})
	}
	return out, rows.Err()
}
