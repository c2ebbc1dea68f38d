package schc

import (
	"encoding/binary"
	"fmt"
)

// Option configures a Fragmenter.
type Option func(*Fragmenter)

// WithWindow sets the window bit and toggles it every time the fcn counter
// wraps. Requires a profile with a window field.
func WithWindow() Option {
	return func(f *Fragmenter) { f.windowed = true }
}

// WithIntegrityCheck appends a CRC-32 of the whole message to the header of
// the final fragment.
func WithIntegrityCheck() Option {
	return func(f *Fragmenter) { f.rcs = true }
}

// Fragmenter splits one message into No-ACK fragments. It is owned by a single
// sender and is not safe for concurrent use.
type Fragmenter struct {
	profile  Profile
	src      []byte
	pos      int
	base     Header
	maxFCN   uint32
	fcn      uint32
	window   int
	windowed bool
	rcs      bool
	done     bool
}

// NewFragmenter prepares src for fragmentation under rule and dtag.
func NewFragmenter(p Profile, src []byte, ruleID, dtag uint32, opts ...Option) (*Fragmenter, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	f := &Fragmenter{
		profile: p,
		src:     src,
		base:    Header{RuleID: ruleID, DTag: dtag},
		maxFCN:  p.MaxFCN(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.windowed {
		if !p.HasWindow() {
			return nil, fmt.Errorf("%w: profile %s has no window field", ErrFieldOverflow, p.Name)
		}
		f.base.Window = 1
	}
	if err := p.Check(f.base); err != nil {
		return nil, err
	}
	f.fcn = f.maxFCN
	return f, nil
}

// Done reports whether the final fragment has been emitted.
func (f *Fragmenter) Done() bool { return f.done }

// Remaining returns the number of source bytes not yet emitted.
func (f *Fragmenter) Remaining() int { return len(f.src) - f.pos }

// NextFragment emits the next fragment carrying at most capacity payload
// bytes. last is true for the final fragment, after which further calls fail
// with ErrAlreadyComplete.
func (f *Fragmenter) NextFragment(capacity int) (last bool, frag []byte, err error) {
	if f.done {
		return false, nil, ErrAlreadyComplete
	}
	if capacity < 1 {
		return false, nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}

	h := f.base
	h.Window = f.windowBit()
	hlen := f.profile.HeaderBytes()
	remaining := f.Remaining()

	if remaining <= capacity {
		h.FCN = f.profile.AllOnes()
		extra := 0
		if f.rcs {
			extra = RCSLen
		}
		frag = make([]byte, hlen+extra+remaining)
		if err := EncodeTo(frag, f.profile, h); err != nil {
			return false, nil, err
		}
		if f.rcs {
			binary.BigEndian.PutUint32(frag[hlen:], Checksum(f.src))
		}
		copy(frag[hlen+extra:], f.src[f.pos:])
		f.pos = len(f.src)
		f.done = true
		return true, frag, nil
	}

	// Without a window bit the receiver cannot tell a second window from a
	// replay of the first.
	if f.window > 0 && !f.windowed {
		return false, nil, fmt.Errorf("%w: %d continuation fragments sent, profile %s indexes %d without a window bit",
			ErrWindowExhausted, f.window*f.profile.WindowSize(), f.profile.Name, f.profile.WindowSize())
	}

	h.FCN = f.fcn
	frag = make([]byte, hlen+capacity)
	if err := EncodeTo(frag, f.profile, h); err != nil {
		return false, nil, err
	}
	copy(frag[hlen:], f.src[f.pos:f.pos+capacity])
	f.pos += capacity
	f.advance()
	return false, frag, nil
}

// advance steps the fcn down and starts a new window once it drops below 1.
func (f *Fragmenter) advance() {
	if f.fcn <= 1 {
		f.fcn = f.maxFCN
		f.window++
		return
	}
	f.fcn--
}

// windowBit is 1 in the first window and alternates on every wrap.
func (f *Fragmenter) windowBit() uint8 {
	if !f.windowed {
		return 0
	}
	return uint8(1 - f.window&1)
}

// Fragments runs a Fragmenter to completion with a fixed payload capacity.
func Fragments(p Profile, src []byte, ruleID, dtag uint32, capacity int, opts ...Option) ([][]byte, error) {
	f, err := NewFragmenter(p, src, ruleID, dtag, opts...)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	for {
		last, frag, err := f.NextFragment(capacity)
		if err != nil {
			return nil, err
		}
		out = append(out, frag)
		if last {
			return out, nil
		}
	}
}
