package serial

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vexgw/go-vex-gateway/internal/logging"
)

// DefaultGlob matches the device class the controller enumerates under.
const DefaultGlob = "/dev/ttyACM*"

// ErrNoDeviceFound indicates discovery produced too few candidates.
var ErrNoDeviceFound = errors.New("serial: no device found")

// Selector enumerates candidate device paths and applies the ordinal
// selection rule: the controller is always the second sorted match. The first
// match is the device's own console interface, so identity-based discovery is
// deliberately not attempted.
type Selector struct {
	Glob  string
	probe func(path string) error
}

// NewSelector creates a Selector for the given device-class glob (DefaultGlob
// when empty).
func NewSelector(glob string) *Selector {
	if glob == "" {
		glob = DefaultGlob
	}
	return &Selector{Glob: glob, probe: probeDevice}
}

// Select returns the controller device path or ErrNoDeviceFound when fewer
// than two usable candidates exist.
func (s *Selector) Select() (string, error) {
	matches, err := filepath.Glob(s.Glob)
	if err != nil {
		return "", fmt.Errorf("%w: bad pattern %q: %v", ErrNoDeviceFound, s.Glob, err)
	}
	candidates := make([]string, 0, len(matches))
	for _, m := range matches {
		if s.probe != nil {
			if perr := s.probe(m); perr != nil {
				logging.L().Warn("device_probe_failed", "device", m, "error", perr)
				continue
			}
		}
		candidates = append(candidates, m)
	}
	sort.Strings(candidates)
	if len(candidates) < 2 {
		return "", fmt.Errorf("%w: %d candidate(s) matching %s, need at least 2", ErrNoDeviceFound, len(candidates), s.Glob)
	}
	logging.L().Debug("device_scan", "candidates", candidates, "selected", candidates[1])
	return candidates[1], nil
}
