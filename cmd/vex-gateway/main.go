package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/vexgw/go-vex-gateway/internal/buffer"
	"github.com/vexgw/go-vex-gateway/internal/gateway"
	"github.com/vexgw/go-vex-gateway/internal/metrics"
	"github.com/vexgw/go-vex-gateway/internal/serial"
	"github.com/vexgw/go-vex-gateway/internal/server"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("vex-gateway %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("gateway_info",
		"ip", localIP(),
		"listen", cfg.listenAddr,
		"device_glob", cfg.deviceGlob,
		"baud", cfg.baud)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	buf := buffer.New(cfg.bufferSize)
	conn := serial.NewConn(cfg.serialReadTO)
	sel := serial.NewSelector(cfg.deviceGlob)
	rx := &gateway.Receiver{
		Conn:              conn,
		Buf:               buf,
		Select:            sel.Select,
		Baud:              cfg.baud,
		ReconnectInterval: cfg.reconnectEvery,
		PollInterval:      cfg.pollEvery,
		Logger:            l,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		rx.Run(ctx)
	}()

	srv := server.New(
		server.WithListenAddr(cfg.listenAddr),
		server.WithBuffer(buf),
		server.WithConn(conn),
		server.WithTransmitter(gateway.NewTransmitter(conn, l)),
		server.WithLogger(l),
	)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("http_server_error", "error", err)
			cancel()
		}
	}()

	// Start mDNS advertisement once the listener is ready.
	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		var portNum int
		if _, p, err := net.SplitHostPort(srv.Addr()); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	// Ready when the HTTP listener is bound and the context not cancelled.
	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	wg.Wait()
	// The receiver has exited; release the device handle last.
	conn.Close()
}

// localIP finds the address the gateway is reachable on by opening a UDP
// socket toward a public address. No packet is sent.
func localIP() string {
	c, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer c.Close()
	if addr, ok := c.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
