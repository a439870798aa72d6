package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-can-logger/internal/transport"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// initBackend selects the frame source, starts its RX loop feeding sink and
// returns a cleanup. It returns an error instead of exiting the process to
// allow graceful handling by the caller.
func initBackend(ctx context.Context, cfg *appConfig, sink transport.FrameSink, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	switch cfg.backend {
	case "serial":
		return initSerialBackend(ctx, cfg, sink, l, wg)
	case "socketcan":
		return initSocketCANBackend(ctx, cfg, sink, l, wg)
	default:
		return func() {}, fmt.Errorf("unknown backend %q (use serial|socketcan)", cfg.backend)
	}
}

// backoff doubles the RX retry delay up to rxBackoffMax.
type backoff time.Duration

func (b *backoff) reset() { *b = backoff(rxBackoffMin) }

func (b *backoff) sleep() {
	sleepFn(time.Duration(*b))
	*b *= 2
	if time.Duration(*b) > rxBackoffMax {
		*b = backoff(rxBackoffMax)
	}
}
