package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/metrics"
	"github.com/kstaniek/go-can-logger/internal/socketcan"
	"github.com/kstaniek/go-can-logger/internal/transport"
)

// openSocketCANDevice is a hook for tests (overridden in unit tests).
var openSocketCANDevice = func(iface string) (socketcan.Dev, error) {
	d, err := socketcan.Open(iface, socketCANReadTimeout)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// initSocketCANBackend binds the raw CAN socket and launches the RX loop.
func initSocketCANBackend(ctx context.Context, cfg *appConfig, sink transport.FrameSink, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	dev, err := openSocketCANDevice(cfg.canIf)
	if err != nil {
		return func() {}, fmt.Errorf("socketcan open %s: %w", cfg.canIf, err)
	}
	l.Info("socketcan_open", "if", cfg.canIf)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("socketcan_rx_end")
		var bo backoff
		bo.reset()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			var fr can.Frame
			if err := dev.ReadFrame(&fr); err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				if errors.Is(err, socketcan.ErrTimeout) || errors.Is(err, socketcan.ErrErrorFrame) {
					continue
				}
				metrics.IncError(metrics.ErrSocketCANRead)
				l.Warn("socketcan_read_error", "error", err, "backoff", time.Duration(bo))
				bo.sleep()
				continue
			}
			metrics.IncSocketCANRx()
			_ = sink.Deliver(fr) // overflow is counted by the sink
			bo.reset()
		}
	}()
	return func() { _ = dev.Close() }, nil
}
