// Package version holds the build version stamped into both binaries.
package version

// Version is overridden at build time via -ldflags "-X autosub/internal/version.Version=...".
var Version = "0.1.0"
