//go:build !linux

package socketcan

import (
	"time"

	"github.com/kstaniek/go-can-logger/internal/can"
)

// Device is unavailable off Linux.
type Device struct{}

// Open always fails with ErrUnsupported.
func Open(string, time.Duration) (*Device, error) { return nil, ErrUnsupported }

func (d *Device) ReadFrame(*can.Frame) error { return ErrUnsupported }

func (d *Device) Close() error { return nil }
