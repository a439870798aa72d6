package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-can-logger/internal/dblbuf"
	"github.com/kstaniek/go-can-logger/internal/metrics"
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
					"socketcan_rx", snap.SocketCANRx,
					"rx_queue_drops", snap.RxQueueDrops,
					"recorded", snap.Recorded,
					"rejected", snap.Rejected,
					"discarded", snap.Discarded,
					"buffer_drops", snap.BufferDrops,
					"handoffs", snap.Handoffs,
					"idle_flushes", snap.IdleFlushes,
					"overruns", snap.Overruns,
					"bytes_written", snap.BytesWritten,
					"faults", dblbuf.Fault(snap.Faults).String(),
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
