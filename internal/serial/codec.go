package serial

import (
	"bytes"
	"encoding/binary"

	"github.com/kstaniek/go-can-logger/internal/can"
	"github.com/kstaniek/go-can-logger/internal/metrics"
)

// Adapter envelope: 2D D4 LEN ID(4, big endian) PAYLOAD(0..8) CSUM.
// LEN counts ID, payload and checksum; CSUM = 0x2D + LEN + sum(ID, payload).
const (
	pre0 = 0x2D
	pre1 = 0xD4

	minLn = 4 + 0 + 1 // DLC 0
	maxLn = 4 + can.MaxLen + 1
)

// Codec decodes the frames an Ampio-style UART CAN adapter forwards.
// The adapter only reports 29-bit identifiers.
type Codec struct{}

// CompactBuffer reclaims consumed prefix capacity when underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	if len(data) < 1024 {
		return false
	}
	// If unread < 25% of capacity, compact.
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// DecodeStream consumes complete frames from in and emits them via out.
// Incomplete trailing bytes stay in in for the next call. Bytes that cannot
// start a valid frame are skipped one at a time and counted as malformed.
//
// Example frame (DLC=2):
// 2D D4 07 00 00 00 02 FE 10 44
func (Codec) DecodeStream(in *bytes.Buffer, out func(can.Frame)) error {
	header := []byte{pre0, pre1}

	for {
		data := in.Bytes()
		_ = CompactBuffer(in)
		if len(data) < 3 { // need preamble + len
			return nil
		}

		i := bytes.Index(data, header)
		if i < 0 {
			// keep last byte in case next read starts with the second preamble byte
			if in.Len() > 1 {
				last := data[len(data)-1]
				in.Reset()
				_ = in.WriteByte(last)
			}
			return nil
		}
		if i > 0 {
			in.Next(i)
			continue
		}

		ln := int(data[2])
		if ln < minLn || ln > maxLn {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}
		req := 3 + ln
		if len(data) < req {
			return nil
		}

		sum := uint(pre0) + uint(data[2])
		for _, b := range data[3 : req-1] {
			sum += uint(b)
		}
		if byte(sum) != data[req-1] {
			metrics.IncMalformed()
			in.Next(1)
			continue
		}

		id := binary.BigEndian.Uint32(data[3:7])
		out(can.FromSocketCAN(id&can.CAN_EFF_MASK|can.CAN_EFF_FLAG, data[7:req-1]))
		metrics.IncSerialRx()
		in.Next(req)
	}
}
