package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/mullenkamp/nz-allo-usage-tools/internal/errors"
)

const component = "file_validator"

// FileValidator checks local paths used by the file driver and
// by batch output before any work starts
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", component)),
	}
}

// ValidateFileSource checks the permits JSON file and the usage CSV
// directory. A directory without CSV files is valid: every point then has no
// metered usage.
func (v *FileValidator) ValidateFileSource(permitsPath, usageDir string) error {
	if err := v.ValidateFile(permitsPath, ".json"); err != nil {
		return err
	}
	n, err := v.ValidateInputDirectory(usageDir, "*.csv")
	if err != nil {
		return err
	}
	if n == 0 {
		v.logger.Warn("usage directory holds no csv files", slog.String("directory", usageDir))
	}
	return nil
}

// ValidateInputDirectory checks dir exists and counts the files matching
// pattern
func (v *FileValidator) ValidateInputDirectory(dir, pattern string) (int, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return 0, apperrors.NewValidation(component, "directory %s does not exist", dir)
	}
	if err != nil {
		return 0, fmt.Errorf("stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, apperrors.NewValidation(component, "%s is not a directory", dir)
	}
	if pattern == "" {
		return 0, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("match %s: %w", pattern, err)
	}
	count := 0
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
			count++
		}
	}
	v.logger.Debug("input directory validated",
		slog.String("directory", dir),
		slog.String("pattern", pattern),
		slog.Int("files_found", count))
	return count, nil
}

// ValidateFile checks path is a readable regular file. When exts are given
// the extension must be one of them.
func (v *FileValidator) ValidateFile(path string, exts ...string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return apperrors.NewValidation(component, "file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return apperrors.NewValidation(component, "%s is a directory, not a file", path)
	}
	if len(exts) > 0 && !hasExt(path, exts) {
		return apperrors.NewValidation(component, "file %s must have extension %s", path, strings.Join(exts, " or "))
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	f.Close()

	v.logger.Debug("file validated", slog.String("file", path), slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures dir exists or can be created and is
// writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	v.logger.Debug("output directory validated", slog.String("directory", dir))
	return nil
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
