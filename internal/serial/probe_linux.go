//go:build linux

package serial

import "golang.org/x/sys/unix"

// probeDevice verifies the candidate is actually usable before it can count
// toward the ordinal selection rule.
func probeDevice(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK)
}
