package can

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// MaxLen is the classic CAN payload limit.
const MaxLen = 8

// Kind distinguishes 11-bit standard from 29-bit extended identifiers.
type Kind uint8

const (
	Standard Kind = iota
	Extended
)

func (k Kind) String() string {
	if k == Extended {
		return "EXT"
	}
	return "STD"
}

// Frame is one received classic CAN frame as seen by the logger.
// ID carries no flag bits; only the first Len bytes of Data are valid.
// Tick is the monotonic millisecond count at which the frame was delivered.
type Frame struct {
	Kind Kind
	ID   uint32
	Len  uint8
	Data [MaxLen]byte
	Tick uint32
}

// FromSocketCAN splits a SocketCAN can_id into kind and bare identifier.
func FromSocketCAN(canID uint32, payload []byte) Frame {
	var f Frame
	if canID&CAN_EFF_FLAG != 0 {
		f.Kind = Extended
		f.ID = canID & CAN_EFF_MASK
	} else {
		f.Kind = Standard
		f.ID = canID & CAN_SFF_MASK
	}
	n := len(payload)
	if n > MaxLen {
		n = MaxLen
	}
	f.Len = uint8(n)
	copy(f.Data[:], payload[:n])
	return f
}

// Payload returns the valid data bytes.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }
