package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vexgw/go-vex-gateway/internal/logging"
)

// Prometheus collectors
var (
	SerialRxLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_lines_total",
		Help: "Total lines received from the serial device.",
	})
	SerialTxLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_lines_total",
		Help: "Total lines written to the serial device.",
	})
	SerialConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_connects_total",
		Help: "Total successful serial connection attempts (including reconnects).",
	})
	SerialConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serial_connected",
		Help: "Whether a serial device is currently connected (0/1).",
	})
	BufferEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "message_buffer_evictions_total",
		Help: "Total messages evicted from the receive buffer at capacity.",
	})
	BufferSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "message_buffer_size",
		Help: "Current number of messages held in the receive buffer.",
	})
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "HTTP API requests by endpoint.",
	}, []string{"endpoint"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrDiscovery   = "discovery"
	ErrSerialOpen  = "serial_open"
	ErrSerialRead  = "serial_read"
	ErrSerialWrite = "serial_write"
	ErrHTTP        = "http"
)

// StartHTTP serves Prometheus metrics at /metrics plus a /ready probe on the
// given address.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSerialRx  uint64
	localSerialTx  uint64
	localConnects  uint64
	localEvictions uint64
	localAPI       uint64
	localErrors    uint64
	localBufSize   uint64
	localConnected uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialRx    uint64
	SerialTx    uint64
	Connects    uint64
	Evictions   uint64
	APIRequests uint64
	Errors      uint64 // sum across error labels
	BufferSize  uint64
	Connected   bool
}

func Snap() Snapshot {
	return Snapshot{
		SerialRx:    atomic.LoadUint64(&localSerialRx),
		SerialTx:    atomic.LoadUint64(&localSerialTx),
		Connects:    atomic.LoadUint64(&localConnects),
		Evictions:   atomic.LoadUint64(&localEvictions),
		APIRequests: atomic.LoadUint64(&localAPI),
		Errors:      atomic.LoadUint64(&localErrors),
		BufferSize:  atomic.LoadUint64(&localBufSize),
		Connected:   atomic.LoadUint64(&localConnected) == 1,
	}
}

// Wrapper helpers to keep call sites simple.
func IncSerialRx() {
	SerialRxLines.Inc()
	atomic.AddUint64(&localSerialRx, 1)
}

func IncSerialTx() {
	SerialTxLines.Inc()
	atomic.AddUint64(&localSerialTx, 1)
}

// IncConnect counts a successful open of the device handle.
func IncConnect() {
	SerialConnects.Inc()
	atomic.AddUint64(&localConnects, 1)
}

func IncEviction() {
	BufferEvictions.Inc()
	atomic.AddUint64(&localEvictions, 1)
}

func IncAPIRequest(endpoint string) {
	APIRequests.WithLabelValues(endpoint).Inc()
	atomic.AddUint64(&localAPI, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func SetConnected(connected bool) {
	v := uint64(0)
	if connected {
		v = 1
	}
	SerialConnected.Set(float64(v))
	atomic.StoreUint64(&localConnected, v)
}

func SetBufferSize(n int) {
	BufferSize.Set(float64(n))
	atomic.StoreUint64(&localBufSize, uint64(n))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so the first error does not pay the
	// registration cost.
	for _, lbl := range []string{
		ErrDiscovery, ErrSerialOpen, ErrSerialRead, ErrSerialWrite, ErrHTTP,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
