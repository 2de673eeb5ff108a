package main

import (
	"testing"
	"time"
)

func validConfig() *appConfig {
	return &appConfig{
		deviceGlob:     "/dev/ttyACM*",
		baud:           115200,
		listenAddr:     ":8080",
		serialReadTO:   50 * time.Millisecond,
		reconnectEvery: 2 * time.Second,
		pollEvery:      50 * time.Millisecond,
		bufferSize:     100,
		logFormat:      "text",
		logLevel:       "info",
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*appConfig)
	}{
		{"bad log format", func(c *appConfig) { c.logFormat = "xml" }},
		{"bad log level", func(c *appConfig) { c.logLevel = "verbose" }},
		{"empty glob", func(c *appConfig) { c.deviceGlob = "" }},
		{"zero baud", func(c *appConfig) { c.baud = 0 }},
		{"negative baud", func(c *appConfig) { c.baud = -1 }},
		{"zero read timeout", func(c *appConfig) { c.serialReadTO = 0 }},
		{"zero reconnect interval", func(c *appConfig) { c.reconnectEvery = 0 }},
		{"zero poll interval", func(c *appConfig) { c.pollEvery = 0 }},
		{"zero buffer size", func(c *appConfig) { c.bufferSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	var c *appConfig
	if err := c.validate(); err == nil {
		t.Fatal("expected error for nil config")
	}
}
