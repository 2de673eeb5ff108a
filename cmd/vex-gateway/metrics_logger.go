package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vexgw/go-vex-gateway/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"serial_rx", snap.SerialRx,
					"serial_tx", snap.SerialTx,
					"connects", snap.Connects,
					"evictions", snap.Evictions,
					"api_requests", snap.APIRequests,
					"buffer_size", snap.BufferSize,
					"connected", snap.Connected,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
