package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Set via -ldflags "-X github.com/ternarybob/vera/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetFullVersion formats the version with its build metadata
func GetFullVersion() string {
	if Build == "unknown" && GitCommit == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s (build %s, commit %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile overrides Version from a .version file beside the
// executable. A missing or empty file keeps the linked-in value.
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return Version
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(exePath), ".version"))
	if err != nil {
		return Version
	}
	if v := strings.TrimSpace(string(data)); v != "" {
		Version = v
	}
	return Version
}
