package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors appConfig for the optional YAML file. Pointer fields so
// absent keys leave the defaults alone. Durations are Go duration strings.
type fileConfig struct {
	DeviceGlob         *string `yaml:"device_glob"`
	Baud               *int    `yaml:"baud"`
	Listen             *string `yaml:"listen"`
	SerialReadTimeout  *string `yaml:"serial_read_timeout"`
	ReconnectInterval  *string `yaml:"reconnect_interval"`
	PollInterval       *string `yaml:"poll_interval"`
	BufferSize         *int    `yaml:"buffer_size"`
	LogFormat          *string `yaml:"log_format"`
	LogLevel           *string `yaml:"log_level"`
	MetricsAddr        *string `yaml:"metrics_addr"`
	LogMetricsInterval *string `yaml:"log_metrics_interval"`
	MDNSEnable         *bool   `yaml:"mdns_enable"`
	MDNSName           *string `yaml:"mdns_name"`
}

// applyConfigFile layers the YAML file under flags: a key only applies when
// the corresponding flag was not set on the command line. Env overrides are
// applied after this, so file < env < flag.
func applyConfigFile(c *appConfig, set map[string]struct{}) error {
	if c.configFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.configFile, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse %s: %w", c.configFile, err)
	}

	notSet := func(name string) bool { _, ok := set[name]; return !ok }
	dur := func(key, raw string, dst *time.Duration) error {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s in %s: %w", key, c.configFile, err)
		}
		*dst = d
		return nil
	}

	if fc.DeviceGlob != nil && notSet("device-glob") {
		c.deviceGlob = *fc.DeviceGlob
	}
	if fc.Baud != nil && notSet("baud") {
		c.baud = *fc.Baud
	}
	if fc.Listen != nil && notSet("listen") {
		c.listenAddr = *fc.Listen
	}
	if fc.SerialReadTimeout != nil && notSet("serial-read-timeout") {
		if err := dur("serial_read_timeout", *fc.SerialReadTimeout, &c.serialReadTO); err != nil {
			return err
		}
	}
	if fc.ReconnectInterval != nil && notSet("reconnect-interval") {
		if err := dur("reconnect_interval", *fc.ReconnectInterval, &c.reconnectEvery); err != nil {
			return err
		}
	}
	if fc.PollInterval != nil && notSet("poll-interval") {
		if err := dur("poll_interval", *fc.PollInterval, &c.pollEvery); err != nil {
			return err
		}
	}
	if fc.BufferSize != nil && notSet("buffer-size") {
		c.bufferSize = *fc.BufferSize
	}
	if fc.LogFormat != nil && notSet("log-format") {
		c.logFormat = *fc.LogFormat
	}
	if fc.LogLevel != nil && notSet("log-level") {
		c.logLevel = *fc.LogLevel
	}
	if fc.MetricsAddr != nil && notSet("metrics-addr") {
		c.metricsAddr = *fc.MetricsAddr
	}
	if fc.LogMetricsInterval != nil && notSet("log-metrics-interval") {
		if err := dur("log_metrics_interval", *fc.LogMetricsInterval, &c.logMetricsEvery); err != nil {
			return err
		}
	}
	if fc.MDNSEnable != nil && notSet("mdns-enable") {
		c.mdnsEnable = *fc.MDNSEnable
	}
	if fc.MDNSName != nil && notSet("mdns-name") {
		c.mdnsName = *fc.MDNSName
	}
	return nil
}
