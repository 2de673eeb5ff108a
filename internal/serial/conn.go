package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vexgw/go-vex-gateway/internal/logging"
	"github.com/vexgw/go-vex-gateway/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrClosed = errors.New("serial: not connected")
	ErrOpen   = errors.New("serial: open failed")
	ErrWrite  = errors.New("serial: write failed")
)

// Status is a point-in-time snapshot of the connection.
type Status struct {
	Connected bool
	Path      string
	Baud      int
}

// Conn owns the single active device handle. At most one endpoint is open at
// a time; every Read, Write, Open and Close against the handle is serialized
// by the mutex so operations never interleave mid-transfer. IsOpen reflects
// the latest committed state without blocking behind in-flight I/O.
type Conn struct {
	mu          sync.Mutex
	port        Port
	path        string
	baud        int
	readTimeout time.Duration
	opener      func(name string, baud int, readTimeout time.Duration) (Port, error)
	open        atomic.Bool
}

// NewConn creates a closed connection manager. readTimeout bounds every Read
// against the handle.
func NewConn(readTimeout time.Duration) *Conn {
	return &Conn{readTimeout: readTimeout, opener: Open}
}

// SetOpener replaces the function used to acquire the device handle.
func (c *Conn) SetOpener(fn func(name string, baud int, readTimeout time.Duration) (Port, error)) {
	if fn != nil {
		c.opener = fn
	}
}

// Open acquires the device handle at path. Any previously held handle is
// released first.
func (c *Conn) Open(path string, baud int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	p, err := c.opener(path, baud, c.readTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	c.port = p
	c.path = path
	c.baud = baud
	c.open.Store(true)
	metrics.SetConnected(true)
	logging.L().Info("serial_open", "device", path, "baud", baud)
	return nil
}

// Close releases the device handle if held. Idempotent; the connection is
// always Closed afterwards.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Conn) closeLocked() {
	if c.port == nil {
		return
	}
	// Flip the committed state before releasing the handle so no observer
	// sees "open" mid-close.
	c.open.Store(false)
	logging.L().Info("serial_close", "device", c.path)
	_ = c.port.Close()
	c.port = nil
	c.path = ""
	metrics.SetConnected(false)
}

// Read fills p from the device, blocking at most the configured read timeout.
// Returns ErrClosed when no handle is held. Other errors are returned raw:
// classifying them (timeout vs. dead device) is the receive loop's job.
func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return 0, ErrClosed
	}
	return c.port.Read(p)
}

// Write sends p to the device. A failed write releases the handle inside the
// same critical section, so IsOpen reports false before Write returns.
func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return 0, ErrClosed
	}
	n, err := c.port.Write(p)
	if err != nil {
		path := c.path
		c.closeLocked()
		return n, fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return n, nil
}

// IsOpen reports the latest committed connection state without blocking.
func (c *Conn) IsOpen() bool { return c.open.Load() }

// Status returns a consistent snapshot for status observers.
func (c *Conn) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Connected: c.port != nil, Path: c.path, Baud: c.baud}
}
