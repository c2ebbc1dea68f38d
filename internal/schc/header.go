package schc

import (
	"encoding/binary"
	"fmt"
)

// Header is a decoded fragment header. Window is zero for profiles without a
// window field.
type Header struct {
	RuleID uint32
	DTag   uint32
	Window uint8
	FCN    uint32
}

// IsFinal reports whether the header carries the end-of-message marker.
func (h Header) IsFinal(p Profile) bool { return h.FCN == p.AllOnes() }

// Check verifies every field value fits its declared width.
func (p Profile) Check(h Header) error {
	for _, fv := range []struct {
		name string
		f    Field
		v    uint32
	}{
		{"rule_id", p.RuleID, h.RuleID},
		{"dtag", p.DTag, h.DTag},
		{"window", p.Window, uint32(h.Window)},
		{"fcn", p.FCN, h.FCN},
	} {
		if fv.v > fv.f.Max() {
			return fmt.Errorf("%w: %s=%d does not fit %d bits of %s", ErrFieldOverflow, fv.name, fv.v, fv.f.Width, p.Name)
		}
	}
	return nil
}

// Encode packs h into the profile's big-endian header bytes.
func Encode(p Profile, h Header) ([]byte, error) {
	b := make([]byte, p.HeaderBytes())
	if err := EncodeTo(b, p, h); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeTo packs h into the first HeaderBytes of dst.
func EncodeTo(dst []byte, p Profile, h Header) error {
	n := p.HeaderBytes()
	if len(dst) < n {
		return fmt.Errorf("%w: destination holds %d bytes, header needs %d", ErrTruncatedHeader, len(dst), n)
	}
	if err := p.Check(h); err != nil {
		return err
	}
	raw := p.RuleID.put(h.RuleID) |
		p.DTag.put(h.DTag) |
		p.Window.put(uint32(h.Window)) |
		p.FCN.put(h.FCN)

	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], raw)
	copy(dst[:n], tmp[4-n:])
	return nil
}

// Decode unpacks the header at the start of b. Trailing bytes are ignored.
func Decode(p Profile, b []byte) (Header, error) {
	n := p.HeaderBytes()
	if len(b) < n {
		return Header{}, fmt.Errorf("%w: need %d bytes, got %d", ErrTruncatedHeader, n, len(b))
	}
	var tmp [4]byte
	copy(tmp[4-n:], b[:n])
	raw := binary.BigEndian.Uint32(tmp[:])

	return Header{
		RuleID: p.RuleID.extract(raw),
		DTag:   p.DTag.extract(raw),
		Window: uint8(p.Window.extract(raw)),
		FCN:    p.FCN.extract(raw),
	}, nil
}

// Split decodes the header of a raw fragment and returns the bytes after it.
func Split(p Profile, frag []byte) (Header, []byte, error) {
	h, err := Decode(p, frag)
	if err != nil {
		return Header{}, nil, err
	}
	return h, frag[p.HeaderBytes():], nil
}
