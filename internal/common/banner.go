package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner prints the startup banner with the version and active risk profile
func PrintBanner(config *Config) {
	banner.PrintSimple("VERA", GetFullVersion()+" | profile "+config.Profile.Default)
}
