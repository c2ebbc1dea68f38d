package reassembly

import (
	"slices"

	"firestige.xyz/schc/internal/schc"
)

// Outcome is the result of feeding one piece to a Buffer.
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Duplicate {
		return "duplicate"
	}
	return "accepted"
}

// Buffer collects the pieces of one message.
//
// Continuations are stored at their sequence position. The terminal piece is
// kept apart: its exact position is not carried on the wire, only the window
// it belongs to, so completion checks that the terminal's window agrees with
// the number of continuations received.
type Buffer struct {
	pieces  map[int][]byte
	lowest  int
	highest int

	terminal     []byte
	terminalBase int
	hasTerminal  bool

	rcs    uint32
	hasRCS bool

	// windowSize is the number of positions per window, 0 when the
	// profile carries no window bit.
	windowSize int
	perWindow  map[int]int
	winSeen    bool
	curWin     int

	bytes int
	ttl   int
	life  int
}

// NewBuffer returns an empty buffer that lives for ttl ticks.
func NewBuffer(ttl, windowSize int) *Buffer {
	return &Buffer{
		pieces:     make(map[int][]byte),
		perWindow:  make(map[int]int),
		windowSize: windowSize,
		ttl:        ttl,
		life:       ttl,
	}
}

// Receive stores payload at pos. For the terminal piece pos is the first
// position of its window. The payload is copied.
func (b *Buffer) Receive(pos int, last bool, payload []byte) Outcome {
	if last {
		if b.hasTerminal {
			return Duplicate
		}
		b.terminal = slices.Clone(payload)
		b.terminalBase = pos
		b.hasTerminal = true
		b.bytes += len(payload)
		return Accepted
	}

	if _, ok := b.pieces[pos]; ok {
		return Duplicate
	}
	if len(b.pieces) == 0 || pos < b.lowest {
		b.lowest = pos
	}
	if len(b.pieces) == 0 || pos > b.highest {
		b.highest = pos
	}
	b.pieces[pos] = slices.Clone(payload)
	b.bytes += len(payload)
	if b.windowSize > 0 {
		b.perWindow[pos/b.windowSize]++
	}
	return Accepted
}

// SetChecksum records the reassembly check sequence carried by the terminal.
// A buffer with a checksum only completes when the assembled bytes match.
func (b *Buffer) SetChecksum(sum uint32) {
	b.rcs = sum
	b.hasRCS = true
}

// Position maps a decoded window bit and in-window offset (max fcn minus fcn)
// to a sequence position, tracking which window the sender is in.
//
// The first window carries bit 1 and the bit alternates on every wrap, so
// the bit fixes the parity of the window index. Among windows of that parity
// the one closest to the current window is chosen, preferring the previous
// window while it still has room.
func (b *Buffer) Position(bit uint8, offset int, last bool) int {
	if b.windowSize == 0 {
		if last {
			return 0
		}
		return offset
	}
	w := b.resolveWindow(bit, offset, last)
	if last {
		return w * b.windowSize
	}
	return w*b.windowSize + offset
}

func (b *Buffer) resolveWindow(bit uint8, offset int, last bool) int {
	parity := 1 - int(bit&1)
	switch {
	case !b.winSeen:
		b.winSeen = true
		b.curWin = parity
	case b.curWin&1 == parity:
	case b.curWin > 0 && !b.windowFull(b.curWin-1):
		return b.curWin - 1
	case last && b.hasTerminal:
		// a repeated terminal must not move the window
	case b.curWin > 0 && !last && !b.nextWindowPlausible(offset):
		// Replay from the full previous window: the slot is taken.
		return b.curWin - 1
	default:
		b.curWin++
	}
	return b.curWin
}

// nextWindowPlausible reports whether a piece at offset in the window after
// the current one fits what has been received: the sender only gets there
// after sending the whole current window, so at most offset+1 of its pieces
// can still be in flight.
func (b *Buffer) nextWindowPlausible(offset int) bool {
	missing := b.windowSize - b.perWindow[b.curWin]
	return missing <= offset+1
}

func (b *Buffer) windowFull(w int) bool {
	return b.perWindow[w] >= b.windowSize
}

// IsComplete reports whether the terminal piece has arrived and every
// continuation position up to it is filled.
func (b *Buffer) IsComplete() bool {
	if !b.hasTerminal {
		return false
	}

	n := len(b.pieces)
	if n > 0 {
		if b.highest-b.lowest != n-1 {
			return false
		}
		if b.windowSize == 0 {
			if b.lowest != 0 {
				return false
			}
		} else {
			// Positions are anchored at the window the first
			// continuation fell in; the terminal must sit in the
			// window that follows n continuations.
			first := b.lowest / b.windowSize
			if b.lowest%b.windowSize != 0 {
				return false
			}
			if (n/b.windowSize-(b.terminalBase/b.windowSize-first))%2 != 0 {
				return false
			}
		}
	}

	if b.hasRCS {
		return schc.Checksum(b.concat()) == b.rcs
	}
	return true
}

// Assemble concatenates the pieces in ascending position order with the
// terminal last.
func (b *Buffer) Assemble() ([]byte, error) {
	if !b.IsComplete() {
		return nil, ErrNotComplete
	}
	return b.concat(), nil
}

func (b *Buffer) concat() []byte {
	positions := make([]int, 0, len(b.pieces))
	for pos := range b.pieces {
		positions = append(positions, pos)
	}
	slices.Sort(positions)

	out := make([]byte, 0, b.bytes)
	for _, pos := range positions {
		out = append(out, b.pieces[pos]...)
	}
	return append(out, b.terminal...)
}

// Tick consumes one unit of life and reports whether the buffer is still
// alive.
func (b *Buffer) Tick() bool {
	b.life--
	return b.life > 0
}

// Touch restores the full TTL.
func (b *Buffer) Touch() { b.life = b.ttl }

// Len returns the number of pieces held, terminal included.
func (b *Buffer) Len() int {
	if b.hasTerminal {
		return len(b.pieces) + 1
	}
	return len(b.pieces)
}

// Bytes returns the payload bytes held.
func (b *Buffer) Bytes() int { return b.bytes }
