package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// PermitSource returns the raw permit records of the catalog
type PermitSource interface {
	Permits(ctx context.Context) ([]domain.PermitRecord, error)
}

// UsageStore returns the raw daily metered usage of one point. A point with
// no stored usage returns no rows and no error. A zero from or to leaves that
// end of the range open.
type UsageStore interface {
	Usage(ctx context.Context, wapID string, from, to time.Time) ([]domain.UsageReading, error)
}

// Driver names a storage backend
type Driver string

const (
	DriverS3       Driver = "s3"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverFile     Driver = "file"
	DriverMemory   Driver = "memory"
)

// Config selects and configures a driver
type Config struct {
	Driver Driver

	// s3
	Bucket      string
	Region      string
	Endpoint    string
	PathStyle   bool
	PermitsKey  string
	UsagePrefix string

	// file
	PermitsPath string
	UsageDir    string

	// sqlite / postgres
	SQLitePath  string
	PostgresDSN string
}

// Backend is an opened driver serving both collaborators
type Backend interface {
	PermitSource
	UsageStore
	io.Closer
}

// Open connects the configured driver
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:      cfg.Bucket,
			Region:      cfg.Region,
			Endpoint:    cfg.Endpoint,
			PathStyle:   cfg.PathStyle,
			PermitsKey:  cfg.PermitsKey,
			UsagePrefix: cfg.UsagePrefix,
		})
	case DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case DriverFile:
		return NewFileStore(cfg.PermitsPath, cfg.UsageDir)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// inRange reports whether d lies in [from, to], zero bounds being open
func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}
