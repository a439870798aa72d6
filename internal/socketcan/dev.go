package socketcan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/kstaniek/go-can-logger/internal/can"
)

var (
	// ErrUnsupported is returned by Open on platforms without SocketCAN.
	ErrUnsupported = errors.New("socketcan: not supported on this platform")
	// ErrTimeout is returned by ReadFrame when the receive timeout expires.
	ErrTimeout = errors.New("socketcan: read timeout")
	// ErrErrorFrame marks controller error frames, which are not logged.
	ErrErrorFrame = errors.New("socketcan: error frame")
)

// Dev is the receive side of a raw CAN socket.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	Close() error
}

// frameSize is sizeof(struct can_frame), the classic CAN MTU.
const frameSize = 16

// decodeFrame parses struct can_frame (linux/can.h):
//
//	can_id  u32   [0:4]  host byte order, includes EFF/RTR/ERR flags
//	can_dlc u8    [4]
//	pad     3B    [5:8]
//	data    [8]   [8:16]
func decodeFrame(buf []byte, fr *can.Frame) error {
	if len(buf) != frameSize {
		return fmt.Errorf("short read: %d", len(buf))
	}
	id := binary.NativeEndian.Uint32(buf[0:4])
	if id&can.CAN_ERR_FLAG != 0 {
		return ErrErrorFrame
	}
	dlc := int(buf[4])
	if dlc > can.MaxLen {
		dlc = can.MaxLen
	}
	*fr = can.FromSocketCAN(id, buf[8:8+dlc])
	return nil
}
