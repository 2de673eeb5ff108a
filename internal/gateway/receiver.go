package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vexgw/go-vex-gateway/internal/buffer"
	"github.com/vexgw/go-vex-gateway/internal/logging"
	"github.com/vexgw/go-vex-gateway/internal/metrics"
	"github.com/vexgw/go-vex-gateway/internal/serial"
)

const (
	// DefaultReconnectInterval is the minimum time between reconnection
	// attempts while disconnected.
	DefaultReconnectInterval = 2 * time.Second
	// DefaultPollInterval is the sleep between loop iterations.
	DefaultPollInterval = 50 * time.Millisecond

	readBufSize = 4096
	// largeBufferReclaimThreshold is the capacity above which the RX
	// accumulation buffer is discarded and reallocated once drained, so a
	// burst of junk does not permanently retain a large backing array.
	largeBufferReclaimThreshold = 16 * 1024
)

// SelectFunc returns the device path a reconnection attempt should target.
type SelectFunc func() (string, error)

// Receiver is the perpetual background worker: it drains the open connection
// into the message buffer and drives reconnection while disconnected. It is
// the sole writer of both the connection state and the buffer.
type Receiver struct {
	Conn              *serial.Conn
	Buf               *buffer.Buffer
	Select            SelectFunc
	Baud              int
	ReconnectInterval time.Duration
	PollInterval      time.Duration
	Logger            *slog.Logger
}

// Run polls until ctx is cancelled. It never fails: every serial error is
// converted into a Closed transition and a later reconnect cycle.
func (r *Receiver) Run(ctx context.Context) {
	if r.ReconnectInterval <= 0 {
		r.ReconnectInterval = DefaultReconnectInterval
	}
	if r.PollInterval <= 0 {
		r.PollInterval = DefaultPollInterval
	}
	log := r.Logger
	if log == nil {
		log = logging.L()
	}
	defer log.Info("serial_rx_end")

	buf := make([]byte, readBufSize)
	acc := bytes.NewBuffer(nil)
	var lastAttempt time.Time
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if r.Conn.IsOpen() {
			n, err := r.Conn.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				r.drainLines(acc, log)
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
			}
			if err != nil && !r.transientRead(err) {
				if ctx.Err() != nil {
					return
				}
				metrics.IncError(metrics.ErrSerialRead)
				log.Warn("serial_read_error", "error", err)
				acc.Reset() // partial line from a dead handle is worthless
				r.Conn.Close()
				lastAttempt = time.Now() // full interval before the next attempt
			}
		} else if time.Since(lastAttempt) >= r.ReconnectInterval {
			lastAttempt = time.Now()
			r.reconnect(log)
		}
		if !sleepCtx(ctx, r.PollInterval) {
			return
		}
	}
}

// transientRead reports whether a read error means "no data within the
// timeout" rather than a dead handle. tarm/serial surfaces timeouts as EOF.
func (r *Receiver) transientRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, serial.ErrClosed)
}

// drainLines extracts complete newline-terminated lines from acc and appends
// them to the buffer. Partial trailing data stays accumulated.
func (r *Receiver) drainLines(acc *bytes.Buffer, log *slog.Logger) {
	for {
		data := acc.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return
		}
		line := strings.TrimRight(string(data[:i]), " \t\r")
		acc.Next(i + 1)
		if line == "" {
			continue
		}
		// Decode permissively: invalid byte sequences are replaced, never fatal.
		line = strings.ToValidUTF8(line, "�")
		m := r.Buf.Append(line)
		metrics.IncSerialRx()
		log.Debug("serial_rx", "id", m.ID, "text", m.Text)
	}
}

// reconnect runs one discovery + open attempt.
func (r *Receiver) reconnect(log *slog.Logger) {
	path, err := r.Select()
	if err != nil {
		metrics.IncError(metrics.ErrDiscovery)
		log.Warn("device_scan_failed", "error", err)
		return
	}
	if err := r.Conn.Open(path, r.Baud); err != nil {
		metrics.IncError(metrics.ErrSerialOpen)
		log.Warn("serial_open_failed", "device", path, "error", err)
		return
	}
	metrics.IncConnect()
	log.Info("serial_connected", "device", path, "baud", r.Baud)
}

// sleepCtx sleeps for d unless ctx is cancelled first; it returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
