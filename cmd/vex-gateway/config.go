package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	deviceGlob      string
	baud            int
	listenAddr      string
	serialReadTO    time.Duration
	reconnectEvery  time.Duration
	pollEvery       time.Duration
	bufferSize      int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
	configFile      string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	deviceGlob := flag.String("device-glob", "/dev/ttyACM*", "Serial device-class glob; the controller is the second sorted match")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	listen := flag.String("listen", ":8080", "HTTP listen address")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	reconnectEvery := flag.Duration("reconnect-interval", 2*time.Second, "Minimum time between reconnection attempts")
	pollEvery := flag.Duration("poll-interval", 50*time.Millisecond, "Receiver loop tick")
	bufferSize := flag.Int("buffer-size", 100, "Received message buffer capacity")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement of the HTTP interface")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default vex-gateway-<hostname>)")
	configFile := flag.String("config", "", "Optional YAML config file (lowest precedence)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env
	// and config file.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.deviceGlob = *deviceGlob
	cfg.baud = *baud
	cfg.listenAddr = *listen
	cfg.serialReadTO = *serialReadTO
	cfg.reconnectEvery = *reconnectEvery
	cfg.pollEvery = *pollEvery
	cfg.bufferSize = *bufferSize
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile

	if err := applyConfigFile(cfg, setFlags); err != nil {
		fmt.Printf("config file error: %v\n", err)
		return nil, *showVersion
	}
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.deviceGlob == "" {
		return errors.New("device-glob must not be empty")
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.reconnectEvery <= 0 {
		return fmt.Errorf("reconnect-interval must be > 0")
	}
	if c.pollEvery <= 0 {
		return fmt.Errorf("poll-interval must be > 0")
	}
	if c.bufferSize <= 0 {
		return fmt.Errorf("buffer-size must be > 0 (got %d)", c.bufferSize)
	}
	return nil
}

// applyEnvOverrides maps VEX_GATEWAY_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Durations accept Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["device-glob"]; !ok {
		if v, ok := get("VEX_GATEWAY_DEVICE_GLOB"); ok && v != "" {
			c.deviceGlob = v
		}
	}
	if _, ok := set["baud"]; !ok {
		if v, ok := get("VEX_GATEWAY_BAUD"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.baud = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEX_GATEWAY_BAUD: %w", err)
			}
		}
	}
	if _, ok := set["listen"]; !ok {
		if v, ok := get("VEX_GATEWAY_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["serial-read-timeout"]; !ok {
		if v, ok := get("VEX_GATEWAY_SERIAL_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.serialReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEX_GATEWAY_SERIAL_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["reconnect-interval"]; !ok {
		if v, ok := get("VEX_GATEWAY_RECONNECT_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.reconnectEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEX_GATEWAY_RECONNECT_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["poll-interval"]; !ok {
		if v, ok := get("VEX_GATEWAY_POLL_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.pollEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEX_GATEWAY_POLL_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["buffer-size"]; !ok {
		if v, ok := get("VEX_GATEWAY_BUFFER_SIZE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.bufferSize = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEX_GATEWAY_BUFFER_SIZE: %w", err)
			}
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("VEX_GATEWAY_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("VEX_GATEWAY_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("VEX_GATEWAY_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("VEX_GATEWAY_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid VEX_GATEWAY_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("VEX_GATEWAY_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("VEX_GATEWAY_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	return firstErr
}
