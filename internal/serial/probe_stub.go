//go:build !linux

package serial

// probeDevice is a no-op on platforms without access(2) semantics.
func probeDevice(string) error { return nil }
