// Package app wires the relay daemon's runtime dependencies.
//
// It loads Config from defaults, an optional config file and PARLEY_*
// environment overrides, then builds the logger and the configured audit
// sink for cmd/parleyd to mount.
package app
