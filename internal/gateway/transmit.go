package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vexgw/go-vex-gateway/internal/logging"
	"github.com/vexgw/go-vex-gateway/internal/metrics"
	"github.com/vexgw/go-vex-gateway/internal/serial"
)

// Transmitter is the synchronous write path from network callers to the
// device. All writes go through the connection manager, which serializes them
// against the receive loop's reads.
type Transmitter struct {
	conn *serial.Conn
	log  *slog.Logger
}

// NewTransmitter wires a Transmitter to the connection manager.
func NewTransmitter(c *serial.Conn, l *slog.Logger) *Transmitter {
	if l == nil {
		l = logging.L()
	}
	return &Transmitter{conn: c, log: l}
}

// Send validates text, appends the line terminator and writes it to the
// device. Blank input is rejected before any connection access. A write that
// fails mid-transfer leaves the connection Closed for all later observers.
func (t *Transmitter) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if _, err := t.conn.Write([]byte(text + "\n")); err != nil {
		if errors.Is(err, serial.ErrClosed) {
			return ErrNotConnected
		}
		metrics.IncError(metrics.ErrSerialWrite)
		if errors.Is(err, serial.ErrWrite) {
			t.log.Warn("serial_send_failed", "error", err)
			return fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		return err
	}
	metrics.IncSerialTx()
	t.log.Debug("serial_tx", "text", text)
	return nil
}
