package gateway

import (
	"errors"

	"github.com/vexgw/go-vex-gateway/internal/serial"
)

// Sentinel errors returned by Transmitter.Send so callers can classify via
// errors.Is.
var (
	ErrEmptyInput     = errors.New("empty message")
	ErrNotConnected   = errors.New("not connected")
	ErrConnectionLost = errors.New("connection lost")
)

// Reason maps a Send result to the structured reason string exposed over the
// API.
func Reason(err error) string {
	switch {
	case err == nil:
		return "Message sent"
	case errors.Is(err, ErrEmptyInput):
		return "Empty message"
	case errors.Is(err, ErrNotConnected), errors.Is(err, serial.ErrClosed):
		return "USB serial not connected"
	case errors.Is(err, ErrConnectionLost):
		return "USB connection lost"
	default:
		return err.Error()
	}
}
