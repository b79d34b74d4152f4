package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
	"github.com/mullenkamp/nz-allo-usage-tools/internal/shared/testutil"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestValidateFileSource(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, dir string) (string, string)
		wantErr  bool
		wantWarn bool
	}{
		{
			name: "permits and usage present",
			setup: func(t *testing.T, dir string) (string, string) {
				touch(t, filepath.Join(dir, "permits.json"))
				touch(t, filepath.Join(dir, "usage", "W1.csv"))
				return filepath.Join(dir, "permits.json"), filepath.Join(dir, "usage")
			},
		},
		{
			name: "empty usage directory warns",
			setup: func(t *testing.T, dir string) (string, string) {
				touch(t, filepath.Join(dir, "permits.json"))
				require.NoError(t, os.Mkdir(filepath.Join(dir, "usage"), 0o755))
				return filepath.Join(dir, "permits.json"), filepath.Join(dir, "usage")
			},
			wantWarn: true,
		},
		{
			name: "missing permits file",
			setup: func(t *testing.T, dir string) (string, string) {
				return filepath.Join(dir, "permits.json"), dir
			},
			wantErr: true,
		},
		{
			name: "permits file with wrong extension",
			setup: func(t *testing.T, dir string) (string, string) {
				touch(t, filepath.Join(dir, "permits.csv"))
				return filepath.Join(dir, "permits.csv"), dir
			},
			wantErr: true,
		},
		{
			name: "usage path is a file",
			setup: func(t *testing.T, dir string) (string, string) {
				touch(t, filepath.Join(dir, "permits.json"))
				return filepath.Join(dir, "permits.json"), filepath.Join(dir, "permits.json")
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			permits, usage := tt.setup(t, t.TempDir())

			err := NewFileValidator(logger).ValidateFileSource(permits, usage)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantWarn, logs.ContainsMessage("usage directory holds no csv files"))
		})
	}
}

func TestValidateInputDirectoryCountsFilesOnly(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.csv"))
	touch(t, filepath.Join(dir, "b.csv"))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.csv"), 0o755))

	n, err := NewFileValidator(nil).ValidateInputDirectory(dir, "*.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestValidateOutputDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	require.NoError(t, NewFileValidator(nil).ValidateOutputDirectory(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file removed")
}
