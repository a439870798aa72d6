// Package filter implements the acceptance policy applied to every received
// frame before it is formatted.
package filter

import (
	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/config"
)

// Accept reports whether f is recorded under cfg. The kind must be enabled and
// the identifier must match the configured value under the mask. The value is
// masked too, so a zero mask accepts everything.
func Accept(f can.Frame, cfg *config.Config) bool {
	switch f.Kind {
	case can.Extended:
		if !cfg.AcceptExt {
			return false
		}
	default:
		if !cfg.AcceptStd {
			return false
		}
	}
	return f.ID&cfg.FilterMask == cfg.FilterValue&cfg.FilterMask
}
