// Package version holds build-time identity for the crankd binary.
package version

const (
	Version     = "0.1.0"
	Name        = "crankd"
	Description = "Missing-tooth crank trigger decoder and speed-density fuel scheduler"
	Copyright   = "© 2026 crankd contributors"
	Developers  = "crankd contributors"
	License     = "GPL-2.0-or-later"
	URL         = "https://github.com/kbuckham/crankd"
)

// Injected at build time via -ldflags.
var (
	GitHash   = "dev"
	BuildTime = "unknown"
)

// FullVersion returns the version string with git hash and build time.
func FullVersion() string {
	return Version + " (" + GitHash + ") built " + BuildTime
}
