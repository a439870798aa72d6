// Package canlink applies a session's bus settings to the CAN controller.
//
// Timing reproduces the bxCAN bit timing register the logger hardware uses
// (36 MHz APB1, 9 time quanta per bit). On Linux, Link pushes the same
// bitrate and silent mode to a SocketCAN interface over rtnetlink.
package canlink

import (
	"errors"

	"github.com/kstaniek/go-can-logger/internal/config"
)

// ErrUnsupported is returned where the link cannot be configured.
var ErrUnsupported = errors.New("canlink: link configuration unsupported on this platform")

// bxCAN BTR fields.
const (
	btrBRPMask = 0x3FF
	btrTS1Pos  = 16
	btrTS2Pos  = 20
	btrSJWPos  = 24
	btrSILM    = 1 << 31

	maxPrescaler = btrBRPMask + 1

	// Segment fields hold value-1: TS1=2tq, TS2=3tq... fixed for the board.
	segTS1 = 1
	segTS2 = 2
	segSJW = 0
)

// Prescaler returns the baud-rate prescaler for a bitrate in kbit/s,
// rounded to nearest and clamped to the register range.
func Prescaler(kbps int) int {
	p := (7*kbps + 500) / 1000
	if p < 1 {
		return 1
	}
	if p > maxPrescaler {
		return maxPrescaler
	}
	return p
}

// Timing is the controller setup derived from a session config.
type Timing struct {
	BitrateKbps int
	Prescaler   int
	Silent      bool
}

// NewTiming derives controller timing from cfg.
func NewTiming(cfg *config.Config) Timing {
	return Timing{
		BitrateKbps: cfg.BitrateKbps,
		Prescaler:   Prescaler(cfg.BitrateKbps),
		Silent:      cfg.ListenOnly(),
	}
}

// BTR returns the bxCAN bit timing register value.
func (t Timing) BTR() uint32 {
	v := uint32(segSJW)<<btrSJWPos |
		uint32(segTS2)<<btrTS2Pos |
		uint32(segTS1)<<btrTS1Pos |
		uint32(t.Prescaler-1)&btrBRPMask
	if t.Silent {
		v |= btrSILM
	}
	return v
}

// BitrateBps is the nominal bitrate in bit/s.
func (t Timing) BitrateBps() uint32 { return uint32(t.BitrateKbps) * 1000 }
