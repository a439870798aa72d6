package socketcan

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/kstaniek/go-can-logger/internal/can"
)

func raw(id uint32, dlc byte, data ...byte) []byte {
	b := make([]byte, frameSize)
	binary.NativeEndian.PutUint32(b[0:4], id)
	b[4] = dlc
	copy(b[8:], data)
	return b
}

func TestDecodeFrame(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want can.Frame
	}{
		{"std", raw(0x123, 2, 0xAB, 0xCD), can.Frame{Kind: can.Standard, ID: 0x123, Len: 2, Data: [8]byte{0xAB, 0xCD}}},
		{"ext", raw(0x1ABCDE|can.CAN_EFF_FLAG, 1, 0x01), can.Frame{Kind: can.Extended, ID: 0x1ABCDE, Len: 1, Data: [8]byte{0x01}}},
		{"empty", raw(0x7FF, 0), can.Frame{Kind: can.Standard, ID: 0x7FF}},
		{"dlc clamp", raw(0x10, 15, 1, 2, 3, 4, 5, 6, 7, 8), can.Frame{Kind: can.Standard, ID: 0x10, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var fr can.Frame
			if err := decodeFrame(tc.buf, &fr); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if fr != tc.want {
				t.Fatalf("got %+v want %+v", fr, tc.want)
			}
		})
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	var fr can.Frame
	if err := decodeFrame(make([]byte, 8), &fr); err == nil {
		t.Fatalf("expected short read error")
	}
	if err := decodeFrame(raw(can.CAN_ERR_FLAG|0x4, 8), &fr); !errors.Is(err, ErrErrorFrame) {
		t.Fatalf("expected ErrErrorFrame, got %v", err)
	}
}
