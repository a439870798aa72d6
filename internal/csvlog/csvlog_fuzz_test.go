package csvlog

import (
	"testing"

	"github.com/kstaniek/go-can-logger/internal/can"
)

// FuzzRoundTrip formats arbitrary frames and parses them back.
func FuzzRoundTrip(f *testing.F) {
	f.Add(uint32(0x123), uint32(0), []byte{0xAB, 0xCD}, true, false)
	f.Add(uint32(0x1FFFFFFF), uint32(0xFFFFFFFF), []byte{1, 2, 3, 4, 5, 6, 7, 8}, true, true)
	f.Add(uint32(0), uint32(1), []byte{}, false, false)
	f.Fuzz(func(t *testing.T, id, tick uint32, data []byte, ext, withTimestamp bool) {
		fr := can.Frame{Kind: can.Standard, ID: id & can.CAN_SFF_MASK, Tick: tick}
		if ext {
			fr.Kind, fr.ID = can.Extended, id&can.CAN_EFF_MASK
		}
		if len(data) > can.MaxLen {
			data = data[:can.MaxLen]
		}
		fr.Len = uint8(len(data))
		copy(fr.Data[:], data)

		var scratch [MaxLineLen]byte
		line := AppendRecord(scratch[:0], fr, withTimestamp)
		if len(line) > MaxLineLen {
			t.Fatalf("line too long: %d", len(line))
		}
		rec, err := ParseRecord(line, withTimestamp)
		if err != nil {
			t.Fatalf("parse %q: %v", line, err)
		}
		if rec.ID != fr.ID || rec.Len != fr.Len || rec.Data != fr.Data {
			t.Fatalf("round trip %q: got %+v", line, rec)
		}
		if withTimestamp && (!rec.HasTick || rec.Tick != tick) {
			t.Fatalf("tick lost in %q", line)
		}
	})
}

// FuzzParseRecord ensures the parser never panics.
func FuzzParseRecord(f *testing.F) {
	f.Add([]byte("1,123,AB,CD,   \r\n"), true)
	f.Add([]byte(","), false)
	f.Fuzz(func(t *testing.T, line []byte, withTimestamp bool) {
		_, _ = ParseRecord(line, withTimestamp)
	})
}
