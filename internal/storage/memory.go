package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts/domain"
)

// Memory is an in-process Backend for tests and embedding
type Memory struct {
	mu      sync.RWMutex
	permits []domain.PermitRecord
	usage   map[string][]domain.UsageReading
	calls   map[string]int
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{
		usage: make(map[string][]domain.UsageReading),
		calls: make(map[string]int),
	}
}

// PutPermits replaces the stored permit records
func (m *Memory) PutPermits(records []domain.PermitRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permits = slices.Clone(records)
}

// PutUsage appends readings, keyed by each reading's point
func (m *Memory) PutUsage(readings []domain.UsageReading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		m.usage[r.WapID] = append(m.usage[r.WapID], r)
	}
}

// Permits implements PermitSource
func (m *Memory) Permits(ctx context.Context) ([]domain.PermitRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.permits), nil
}

// Usage implements UsageStore
func (m *Memory) Usage(ctx context.Context, wapID string, from, to time.Time) ([]domain.UsageReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls[wapID]++
	stored := m.usage[wapID]
	m.mu.Unlock()

	var out []domain.UsageReading
	for _, r := range stored {
		if inRange(r.Date, from, to) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Calls returns how many times usage was fetched for a point
func (m *Memory) Calls(wapID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[wapID]
}

// Close implements io.Closer
func (m *Memory) Close() error { return nil }
