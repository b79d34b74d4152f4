package contracts

import (
	"fmt"
	"runtime"
)

const (
	// DataFormatVersion versions the exported table layout
	DataFormatVersion = "v1"

	// APIVersion is the HTTP API path version
	APIVersion = "v1"
)

// Set during build using ldflags:
//
//	-X github.com/mullenkamp/nz-allo-usage-tools/pkg/contracts.Version=1.2.0
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version      string `json:"version"`
	BuildTime    string `json:"build_time"`
	GitCommit    string `json:"git_commit"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	DataFormat   string `json:"data_format"`
	APIVersion   string `json:"api_version"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:      Version,
		BuildTime:    BuildTime,
		GitCommit:    GitCommit,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		DataFormat:   DataFormatVersion,
		APIVersion:   APIVersion,
	}
}

// GetVersionString returns the name and version of a binary
func GetVersionString(binary string) string {
	return fmt.Sprintf("%s v%s", binary, Version)
}

// GetFullVersionString adds build details to GetVersionString
func GetFullVersionString(binary string) string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s (built: %s, commit: %s, go: %s, os: %s/%s)",
		GetVersionString(binary), info.BuildTime, info.GitCommit,
		info.GoVersion, info.OS, info.Architecture)
}
