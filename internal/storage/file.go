package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// FileStore reads permits from a JSON file and usage from one CSV per point
// in a directory (<usageDir>/<wap_id>.csv)
type FileStore struct {
	permitsPath string
	usageDir    string
}

// NewFileStore creates a file-backed Backend
func NewFileStore(permitsPath, usageDir string) (*FileStore, error) {
	if strings.TrimSpace(permitsPath) == "" {
		return nil, fmt.Errorf("permits path is required")
	}
	if strings.TrimSpace(usageDir) == "" {
		return nil, fmt.Errorf("usage directory is required")
	}
	return &FileStore{permitsPath: filepath.Clean(permitsPath), usageDir: filepath.Clean(usageDir)}, nil
}

// Permits implements PermitSource. The file holds a JSON array of records.
func (s *FileStore) Permits(ctx context.Context) ([]domain.PermitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.permitsPath)
	if err != nil {
		return nil, fmt.Errorf("read permits file: %w", err)
	}
	var records []domain.PermitRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode permits file %s: %w", s.permitsPath, err)
	}
	return records, nil
}

// Usage implements UsageStore
func (s *FileStore) Usage(ctx context.Context, wapID string, from, to time.Time) ([]domain.UsageReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.usagePath(wapID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open usage file: %w", err)
	}
	defer f.Close()

	readings, err := decodeUsageCSV(f, wapID, from, to)
	if err != nil {
		return nil, fmt.Errorf("decode usage for %s: %w", wapID, err)
	}
	return readings, nil
}

// WriteUsage stores a point's readings, replacing any existing file
func (s *FileStore) WriteUsage(wapID string, readings []domain.UsageReading) error {
	if err := os.MkdirAll(s.usageDir, 0o755); err != nil {
		return fmt.Errorf("create usage directory: %w", err)
	}
	f, err := os.Create(s.usagePath(wapID))
	if err != nil {
		return fmt.Errorf("create usage file: %w", err)
	}
	if err := encodeUsageCSV(f, readings); err != nil {
		f.Close()
		return fmt.Errorf("write usage for %s: %w", wapID, err)
	}
	return f.Close()
}

func (s *FileStore) usagePath(wapID string) string {
	return filepath.Join(s.usageDir, safeName(wapID)+".csv")
}

// Close implements io.Closer
func (s *FileStore) Close() error { return nil }

// safeName maps a point id to a file or object name; point ids such as
// "BX23/0001" contain path separators
func safeName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(id)
}
