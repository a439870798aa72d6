package serial

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability. The logger never transmits, so
// only the read side is needed.
type Port interface {
	io.Reader
	Close() error
}

// Open opens the adapter at 8N1. A positive readTimeout makes Read return
// (0, nil) when no byte arrives in time.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}
	return serial.OpenPort(cfg)
}
