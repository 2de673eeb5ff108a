package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vexgw/go-vex-gateway/internal/buffer"
	"github.com/vexgw/go-vex-gateway/internal/gateway"
	"github.com/vexgw/go-vex-gateway/internal/logging"
	"github.com/vexgw/go-vex-gateway/internal/serial"
)

// ErrListen wraps listener setup failures so callers can classify via errors.Is.
var ErrListen = errors.New("listen")

const (
	defaultReadHeaderTimeout = 5 * time.Second
	shutdownGrace            = 3 * time.Second
)

// Server exposes the message buffer, connection status and transmit gateway
// over HTTP. Handlers only read buffer and status snapshots or call the
// transmitter; they never touch the device handle directly.
type Server struct {
	mu        sync.RWMutex
	addr      string
	buf       *buffer.Buffer
	conn      *serial.Conn
	tx        *gateway.Transmitter
	logger    *slog.Logger
	readyOnce sync.Once
	readyCh   chan struct{}
}

type Option func(*Server)

// New creates a Server; wire the collaborators with options.
func New(opts ...Option) *Server {
	s := &Server{
		readyCh: make(chan struct{}),
		logger:  logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) Option     { return func(s *Server) { s.addr = a } }
func WithBuffer(b *buffer.Buffer) Option { return func(s *Server) { s.buf = b } }
func WithConn(c *serial.Conn) Option     { return func(s *Server) { s.conn = c } }

func WithTransmitter(tx *gateway.Transmitter) Option {
	return func(s *Server) { s.tx = tx }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string     { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string) { s.mu.Lock(); s.addr = a; s.mu.Unlock() }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Serve binds the listener and serves HTTP until ctx is cancelled. In-flight
// requests get a short grace period to finish.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListen, err)
	}
	s.setAddr(ln.Addr().String())
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("http_listen", "addr", s.Addr())

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			_ = srv.Close()
		}
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
