package dblbuf

import "strings"

// Fault is the sticky set of conditions recorded during a session.
type Fault uint32

const (
	// FaultOverrun: a handoff was requested while the previous one was still
	// pending, or a record had to be dropped because the buffer was full.
	FaultOverrun Fault = 1 << iota
	// FaultWrite: a short write or failed sync on the session file.
	FaultWrite
)

func (f Fault) Has(x Fault) bool { return f&x == x }

func (f Fault) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(FaultOverrun) {
		parts = append(parts, "overrun")
	}
	if f.Has(FaultWrite) {
		parts = append(parts, "write_fault")
	}
	return strings.Join(parts, "|")
}
