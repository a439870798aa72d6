// Package csvlog renders frames as the logger's CSV records and reads them back.
//
// A record is "<tick>,<id>,<d0>,...,<dn>\r\n" (or without the tick column):
// tick in decimal, id in uppercase hex without padding, every payload byte as
// two uppercase hex digits. Records written at a buffer handoff may carry
// alignment padding of the form ",<spaces>" before the CR LF.
package csvlog

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/kstaniek/go-can-logger/internal/can"
)

// MaxLineLen bounds a formatted record: 10 tick digits, 8 id digits, eight
// three-byte data columns, one separator and CR LF need 45 bytes.
const MaxLineLen = 64

const hexDigits = "0123456789ABCDEF"

var (
	headerTS   = []byte("Timestamp,ID,Data0,Data1,Data2,Data3,Data4,Data5,Data6,Data7\r\n")
	headerNoTS = headerTS[len("Timestamp,"):]
)

// ErrMalformed is returned by ParseRecord for lines that are not records.
var ErrMalformed = errors.New("csvlog: malformed record")

// Header returns the column header written at the start of every session.
func Header(withTimestamp bool) []byte {
	if withTimestamp {
		return headerTS
	}
	return headerNoTS
}

// AppendRecord appends the record for f to dst. With a dst of capacity
// MaxLineLen the call never allocates.
func AppendRecord(dst []byte, f can.Frame, withTimestamp bool) []byte {
	if withTimestamp {
		dst = strconv.AppendUint(dst, uint64(f.Tick), 10)
		dst = append(dst, ',')
	}
	dst = appendHex(dst, f.ID)
	n := int(f.Len)
	if n > can.MaxLen {
		n = can.MaxLen
	}
	for _, b := range f.Data[:n] {
		dst = append(dst, ',', hexDigits[b>>4], hexDigits[b&0x0F])
	}
	return append(dst, '\r', '\n')
}

func appendHex(dst []byte, v uint32) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var tmp [8]byte
	i := len(tmp)
	for v != 0 {
		i--
		tmp[i] = hexDigits[v&0x0F]
		v >>= 4
	}
	return append(dst, tmp[i:]...)
}

// Record is one parsed CSV line.
type Record struct {
	Tick    uint32
	HasTick bool
	ID      uint32
	Len     uint8
	Data    [can.MaxLen]byte
}

// Payload returns the valid data bytes.
func (r *Record) Payload() []byte { return r.Data[:r.Len] }

// ParseRecord parses one record. The line may keep its CR LF terminator and
// any alignment padding.
func ParseRecord(line []byte, withTimestamp bool) (Record, error) {
	var r Record
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	fields := bytes.Split(line, []byte(","))
	// padding column: empty or spaces only, always last
	if last := fields[len(fields)-1]; len(fields) > 1 && len(bytes.Trim(last, " ")) == 0 {
		fields = fields[:len(fields)-1]
	}
	if withTimestamp {
		if len(fields) < 2 {
			return r, fmt.Errorf("%w: want tick and id columns", ErrMalformed)
		}
		tick, err := strconv.ParseUint(string(fields[0]), 10, 32)
		if err != nil {
			return r, fmt.Errorf("%w: tick %q", ErrMalformed, fields[0])
		}
		r.Tick, r.HasTick = uint32(tick), true
		fields = fields[1:]
	}
	if len(fields[0]) == 0 || len(fields[0]) > 8 {
		return r, fmt.Errorf("%w: id %q", ErrMalformed, fields[0])
	}
	id, err := strconv.ParseUint(string(fields[0]), 16, 32)
	if err != nil || id > can.CAN_EFF_MASK {
		return r, fmt.Errorf("%w: id %q", ErrMalformed, fields[0])
	}
	r.ID = uint32(id)
	data := fields[1:]
	if len(data) > can.MaxLen {
		return r, fmt.Errorf("%w: %d data columns", ErrMalformed, len(data))
	}
	for i, col := range data {
		if len(col) != 2 {
			return r, fmt.Errorf("%w: data column %d %q", ErrMalformed, i, col)
		}
		b, err := strconv.ParseUint(string(col), 16, 8)
		if err != nil {
			return r, fmt.Errorf("%w: data column %d %q", ErrMalformed, i, col)
		}
		r.Data[i] = byte(b)
	}
	r.Len = uint8(len(data))
	return r, nil
}
