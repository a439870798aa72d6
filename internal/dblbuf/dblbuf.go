// Package dblbuf implements the two-half byte buffer that decouples the
// frame receive path from the storage writer.
//
// One half accumulates records and belongs to the receive goroutine. The
// other half is pending and belongs to the writer while the pending flag is
// raised. A handoff swaps the halves and raises the flag; the writer lowers it
// again once the bytes are on storage. Payload memory is never shared: the
// flag is the only synchronization.
//
// Receive side: Append, RequestHandoff, Align.
// Writer side: Pending, Release.
// Any goroutine: Len, Faults, SetFault, IsPending.
package dblbuf

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Default sizes: 49 KiB halves handed off at 48 KiB in 512-byte blocks.
const (
	DefaultCapacity  = 49 * 1024
	DefaultThreshold = 48 * 1024
	DefaultBlockSize = 512
)

// ErrGeometry reports buffer sizes that break the alignment or headroom rules.
var ErrGeometry = errors.New("dblbuf: invalid geometry")

// Geometry fixes the buffer sizes for a session.
type Geometry struct {
	Capacity  int // bytes per half; a multiple of BlockSize
	Threshold int // fill level that requests a handoff
	BlockSize int // storage block (sector) size
	MaxLine   int // longest record ever appended
}

// Validate checks that a full line plus worst-case padding always fits above
// the threshold.
func (g Geometry) Validate() error {
	switch {
	case g.BlockSize <= 0:
		return fmt.Errorf("%w: block size %d", ErrGeometry, g.BlockSize)
	case g.Capacity <= 0 || g.Capacity%g.BlockSize != 0:
		return fmt.Errorf("%w: capacity %d is not a multiple of block size %d", ErrGeometry, g.Capacity, g.BlockSize)
	case g.Threshold <= 0 || g.Threshold >= g.Capacity:
		return fmt.Errorf("%w: threshold %d outside (0, %d)", ErrGeometry, g.Threshold, g.Capacity)
	case g.Capacity-g.Threshold < g.MaxLine+g.BlockSize:
		return fmt.Errorf("%w: headroom %d < max line %d + block %d", ErrGeometry, g.Capacity-g.Threshold, g.MaxLine, g.BlockSize)
	}
	return nil
}

// Hooks observe buffer events. They run on the goroutine that caused the
// event and must not block.
type Hooks struct {
	// OnHandoff is called after a successful swap with the pending size.
	OnHandoff func(n int, aligned bool)
	// OnOverrun is called for every handoff refused because one is pending.
	OnOverrun func()
	// OnDrop is called when Append rejects a record for lack of space.
	OnDrop func(n int)
	// OnFault is called the first time each fault bit is set.
	OnFault func(Fault)
}

// Buffer is the double buffer. The zero value is not usable; call New.
type Buffer struct {
	geo   Geometry
	hooks Hooks

	acc     []byte // receive side
	accLen  int
	pend    []byte // writer side while pending is raised
	pendLen int

	pending atomic.Bool
	length  atomic.Int64 // mirror of accLen for other goroutines
	faults  atomic.Uint32
	drops   atomic.Uint64
}

// New allocates both halves.
func New(g Geometry, hooks Hooks) (*Buffer, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{
		geo:   g,
		hooks: hooks,
		acc:   make([]byte, g.Capacity),
		pend:  make([]byte, g.Capacity),
	}, nil
}

// Geometry returns the sizes the buffer was built with.
func (b *Buffer) Geometry() Geometry { return b.geo }

// Append copies p into the accumulating half and requests a handoff once the
// threshold is reached. A record that does not fit is dropped whole: the
// overrun fault is set and false is returned.
func (b *Buffer) Append(p []byte) bool {
	if b.accLen+len(p) > len(b.acc) {
		b.drops.Add(1)
		b.SetFault(FaultOverrun)
		if b.hooks.OnDrop != nil {
			b.hooks.OnDrop(len(p))
		}
		return false
	}
	copy(b.acc[b.accLen:], p)
	b.accLen += len(p)
	b.length.Store(int64(b.accLen))
	if b.accLen >= b.geo.Threshold {
		b.RequestHandoff()
	}
	return true
}

// RequestHandoff aligns the accumulating half and swaps it with the pending
// one. If the writer has not consumed the previous handoff yet, the overrun
// fault is set and the accumulated data stays where it is.
func (b *Buffer) RequestHandoff() bool {
	if b.pending.Load() {
		b.SetFault(FaultOverrun)
		if b.hooks.OnOverrun != nil {
			b.hooks.OnOverrun()
		}
		return false
	}
	aligned := b.Align()
	b.acc, b.pend = b.pend, b.acc
	b.pendLen = b.accLen
	b.accLen = 0
	b.length.Store(0)
	n := b.pendLen
	b.pending.Store(true)
	if b.hooks.OnHandoff != nil {
		b.hooks.OnHandoff(n, aligned)
	}
	return true
}

// Align pads the last record so the accumulated length becomes a multiple of
// the block size: its CR LF turns into ",<spaces>CR LF". Nothing happens when
// the data does not end in CR LF or is already aligned. Reports whether
// padding was added.
func (b *Buffer) Align() bool {
	n := b.accLen
	if n < 2 || b.acc[n-2] != '\r' || b.acc[n-1] != '\n' {
		return false
	}
	rem := n % b.geo.BlockSize
	if rem == 0 {
		return false
	}
	// n <= Capacity and Capacity is block aligned, so the padded length fits.
	pad := b.geo.BlockSize - rem
	end := n + pad
	b.acc[n-2] = ','
	for i := n - 1; i < end-2; i++ {
		b.acc[i] = ' '
	}
	b.acc[end-2] = '\r'
	b.acc[end-1] = '\n'
	b.accLen = end
	b.length.Store(int64(end))
	return true
}

// Pending returns the bytes of an outstanding handoff. The slice stays valid
// until Release.
func (b *Buffer) Pending() ([]byte, bool) {
	if !b.pending.Load() {
		return nil, false
	}
	return b.pend[:b.pendLen], true
}

// Release acknowledges the pending bytes and hands the half back.
func (b *Buffer) Release() {
	b.pendLen = 0
	b.pending.Store(false)
}

// IsPending reports whether a handoff awaits the writer.
func (b *Buffer) IsPending() bool { return b.pending.Load() }

// Len is the current accumulating length.
func (b *Buffer) Len() int { return int(b.length.Load()) }

// Drops counts records rejected by Append.
func (b *Buffer) Drops() uint64 { return b.drops.Load() }

// Faults returns the sticky fault set.
func (b *Buffer) Faults() Fault { return Fault(b.faults.Load()) }

// SetFault adds f to the fault set and reports whether any of its bits were new.
func (b *Buffer) SetFault(f Fault) bool {
	old := Fault(b.faults.Or(uint32(f)))
	added := f &^ old
	if added != 0 && b.hooks.OnFault != nil {
		b.hooks.OnFault(added)
	}
	return added != 0
}

// Reset empties both halves and clears faults. Only valid while neither side
// is running, i.e. when a session is being started.
func (b *Buffer) Reset() {
	b.accLen = 0
	b.pendLen = 0
	b.length.Store(0)
	b.pending.Store(false)
	b.faults.Store(0)
	b.drops.Store(0)
}
