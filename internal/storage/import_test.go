package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mullenkamp/nz-allo-usage-tools/internal/shared/testutil"
)

func TestImportIntoSQLite(t *testing.T) {
	ctx := context.Background()
	logger, logs := testutil.NewTestLogger(t)

	src := NewMemory()
	src.PutPermits(samplePermits())
	src.PutUsage(sampleReadings("BX23/0001"))
	src.PutUsage(sampleReadings("UNREFERENCED"))

	dst, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dst.Close() })

	stats, err := Import(ctx, src, dst, DefaultFetchOptions(), logger)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Permits: 1, Points: 1, Readings: 3}, stats)
	assert.True(t, logs.ContainsMessage("import completed"))

	permits, err := dst.Permits(ctx)
	require.NoError(t, err)
	assert.Equal(t, samplePermits(), permits)

	rows, err := dst.Usage(ctx, "BX23/0001", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, sampleReadings("BX23/0001"), rows)

	rows, err = dst.Usage(ctx, "UNREFERENCED", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rows, "only referenced stations are copied")
}
