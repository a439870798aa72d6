package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/metrics"
	"github.com/kstaniek/go-can-logger/internal/serial"
	"github.com/kstaniek/go-can-logger/internal/transport"
)

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = serial.Open

// initSerialBackend opens the UART adapter and launches the RX loop.
func initSerialBackend(ctx context.Context, cfg *appConfig, sink transport.FrameSink, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.serialBaud, cfg.serialReadTO)
	if err != nil {
		return func() {}, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.serialBaud)
	serCodec := serial.Codec{}
	deliver := func(fr can.Frame) { _ = sink.Deliver(fr) } // overflow is counted by the sink
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("serial_rx_end")
		buf := make([]byte, serialReadBufSize)
		acc := bytes.NewBuffer(nil)
		var bo backoff
		bo.reset()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := sp.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				_ = serCodec.DecodeStream(acc, deliver)
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
				bo.reset()
			}
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				var perr *os.PathError
				if errors.As(err, &perr) {
					metrics.IncError(metrics.ErrSerialRead)
					l.Error("serial_device_lost", "error", err)
					return
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					continue // read timeout surfaces as EOF on some platforms
				}
				metrics.IncError(metrics.ErrSerialRead)
				l.Warn("serial_read_error", "error", err, "backoff", time.Duration(bo))
				bo.sleep()
			}
		}
	}()
	return func() { _ = sp.Close() }, nil
}
