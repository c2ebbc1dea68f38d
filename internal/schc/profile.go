package schc

import (
	"fmt"
	"strings"
)

// Field describes one bit field of a fragment header. A zero Width means the
// field is absent from the layout.
type Field struct {
	Width uint
	Shift uint
}

// Present reports whether the field occupies any header bits.
func (f Field) Present() bool { return f.Width > 0 }

// Max returns the largest value the field can carry.
func (f Field) Max() uint32 { return uint32(uint64(1)<<f.Width - 1) }

// Mask returns the field's bits in header position.
func (f Field) Mask() uint32 { return uint32((uint64(1)<<f.Width - 1) << f.Shift) }

func (f Field) put(v uint32) uint32 { return (v << f.Shift) & f.Mask() }

// extract isolates the field first and shifts second. Shifting before masking
// yields wrong values whenever shift and mask disagree in magnitude.
func (f Field) extract(raw uint32) uint32 { return (raw & f.Mask()) >> f.Shift }

// Profile is an immutable fragment header layout.
type Profile struct {
	Name       string
	HeaderBits uint
	RuleID     Field
	DTag       Field
	Window     Field
	FCN        Field
}

// Canonical layouts.
var (
	// Compact8 is 123|1234|1: rule_id, dtag, fcn.
	Compact8 = Profile{
		Name:       "compact-8",
		HeaderBits: 8,
		RuleID:     Field{Width: 3, Shift: 5},
		DTag:       Field{Width: 4, Shift: 1},
		FCN:        Field{Width: 1, Shift: 0},
	}

	// Extended16 is 12345678|1234|1234: rule_id, dtag, fcn.
	Extended16 = Profile{
		Name:       "extended-16",
		HeaderBits: 16,
		RuleID:     Field{Width: 8, Shift: 8},
		DTag:       Field{Width: 4, Shift: 4},
		FCN:        Field{Width: 4, Shift: 0},
	}

	// IETFDraft100 is 1234|1234|1|1234567: rule_id, dtag, window, fcn.
	IETFDraft100 = Profile{
		Name:       "ietf-draft-100",
		HeaderBits: 16,
		RuleID:     Field{Width: 4, Shift: 12},
		DTag:       Field{Width: 4, Shift: 8},
		Window:     Field{Width: 1, Shift: 7},
		FCN:        Field{Width: 7, Shift: 0},
	}
)

var profiles = map[string]Profile{
	Compact8.Name:     Compact8,
	Extended16.Name:   Extended16,
	IETFDraft100.Name: IETFDraft100,
}

// ProfileByName returns one of the canonical profiles.
func ProfileByName(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// ProfileNames lists the canonical profile names.
func ProfileNames() []string {
	return []string{Compact8.Name, Extended16.Name, IETFDraft100.Name}
}

// HeaderBytes is the serialized header length.
func (p Profile) HeaderBytes() int { return int(p.HeaderBits / 8) }

// HasWindow reports whether the layout carries a window bit.
func (p Profile) HasWindow() bool { return p.Window.Present() }

// AllOnes is the fcn value reserved for the final fragment of a message.
func (p Profile) AllOnes() uint32 { return p.FCN.Max() }

// MaxFCN is the first fcn value of every window.
func (p Profile) MaxFCN() uint32 { return p.AllOnes() - 1 }

// WindowSize is the number of continuation fragments one window indexes.
// A 1-bit fcn leaves a single continuation value, so every window holds one.
func (p Profile) WindowSize() int {
	if p.MaxFCN() < 1 {
		return 1
	}
	return int(p.MaxFCN())
}

// Validate checks that the fields fit the header and do not overlap.
func (p Profile) Validate() error {
	if p.HeaderBits == 0 || p.HeaderBits%8 != 0 || p.HeaderBits > 32 {
		return fmt.Errorf("%w: %s: header width %d is not 8, 16, 24 or 32 bits", ErrInvalidProfile, p.Name, p.HeaderBits)
	}
	fields := []struct {
		name     string
		f        Field
		required bool
	}{
		{"rule_id", p.RuleID, true},
		{"dtag", p.DTag, true},
		{"window", p.Window, false},
		{"fcn", p.FCN, true},
	}
	var used uint32
	for _, fd := range fields {
		if !fd.f.Present() {
			if fd.required {
				return fmt.Errorf("%w: %s: %s field missing", ErrInvalidProfile, p.Name, fd.name)
			}
			continue
		}
		if fd.f.Width+fd.f.Shift > p.HeaderBits {
			return fmt.Errorf("%w: %s: %s field exceeds %d header bits", ErrInvalidProfile, p.Name, fd.name, p.HeaderBits)
		}
		if used&fd.f.Mask() != 0 {
			return fmt.Errorf("%w: %s: %s field overlaps another field", ErrInvalidProfile, p.Name, fd.name)
		}
		used |= fd.f.Mask()
	}
	if p.FCN.Width > 31 {
		return fmt.Errorf("%w: %s: fcn wider than 31 bits", ErrInvalidProfile, p.Name)
	}
	return nil
}

func (p Profile) String() string { return p.Name }
