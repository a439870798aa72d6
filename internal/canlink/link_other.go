//go:build !linux

package canlink

import "github.com/kstaniek/go-can-logger/internal/config"

// Link is a placeholder on platforms without SocketCAN.
type Link struct {
	Iface string
}

// Configure always fails with ErrUnsupported.
func (l *Link) Configure(*config.Config) error { return ErrUnsupported }
