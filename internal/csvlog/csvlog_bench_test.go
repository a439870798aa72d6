package csvlog

import (
	"testing"

	"github.com/kstaniek/go-can-logger/internal/can"
)

func BenchmarkAppendRecord(b *testing.B) {
	fr := can.Frame{Kind: can.Extended, ID: 0x1ABCDE, Len: 8, Data: [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, Tick: 123456}
	var scratch [MaxLineLen]byte
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = AppendRecord(scratch[:0], fr, true)
	}
}

func BenchmarkParseRecord(b *testing.B) {
	line := []byte("123456,1ABCDE,01,02,03,04,05,06,07,08\r\n")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseRecord(line, true); err != nil {
			b.Fatal(err)
		}
	}
}
