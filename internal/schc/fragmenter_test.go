package schc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmenter_SingleFragment(t *testing.T) {
	msg := []byte("Hello LoRa")
	f, err := NewFragmenter(IETFDraft100, msg, 1, 5, WithWindow())
	require.NoError(t, err)

	last, frag, err := f.NextFragment(len(msg))
	require.NoError(t, err)
	assert.True(t, last)
	assert.Equal(t, append([]byte{0x15, 0xff}, msg...), frag)
	assert.True(t, f.Done())
	assert.Equal(t, 0, f.Remaining())

	_, _, err = f.NextFragment(len(msg))
	assert.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestFragmenter_ThreeFragments(t *testing.T) {
	frags, err := Fragments(IETFDraft100, []byte("Hello LoRa"), 1, 5, 4, WithWindow())
	require.NoError(t, err)
	require.Len(t, frags, 3)

	assert.Equal(t, append([]byte{0x15, 0xfe}, "Hell"...), frags[0])
	assert.Equal(t, append([]byte{0x15, 0xfd}, "o Lo"...), frags[1])
	assert.Equal(t, append([]byte{0x15, 0xff}, "Ra"...), frags[2])

	wantFCN := []uint32{126, 125, 127}
	for i, frag := range frags {
		h, err := Decode(IETFDraft100, frag)
		require.NoError(t, err)
		assert.Equal(t, wantFCN[i], h.FCN)
		assert.Equal(t, uint8(1), h.Window)
	}
}

func TestFragmenter_FCNSequencingAcrossWindows(t *testing.T) {
	p := IETFDraft100
	msg := bytes.Repeat([]byte{0xab}, 2*p.WindowSize()+10)

	frags, err := Fragments(p, msg, 3, 9, 1, WithWindow())
	require.NoError(t, err)
	require.Len(t, frags, len(msg))

	for i, frag := range frags[:len(frags)-1] {
		h, err := Decode(p, frag)
		require.NoError(t, err)

		inWindow := i % p.WindowSize()
		window := i / p.WindowSize()
		assert.Equal(t, p.MaxFCN()-uint32(inWindow), h.FCN, "fragment %d", i)
		assert.Equal(t, uint8(1-window%2), h.Window, "fragment %d", i)
		assert.NotEqual(t, p.AllOnes(), h.FCN)
		assert.NotZero(t, h.FCN)
	}

	h, err := Decode(p, frags[len(frags)-1])
	require.NoError(t, err)
	assert.Equal(t, p.AllOnes(), h.FCN)
	assert.Equal(t, uint8(1), h.Window, "final fragment belongs to the third window")
}

func TestFragmenter_WindowExhaustedWithoutWindowBit(t *testing.T) {
	p := Extended16

	// A full window of continuations followed by the final fragment fits.
	msg := bytes.Repeat([]byte{1}, p.WindowSize()+1)
	frags, err := Fragments(p, msg, 7, 2, 1)
	require.NoError(t, err)
	assert.Len(t, frags, p.WindowSize()+1)

	// One more continuation would reuse fcn values.
	msg = bytes.Repeat([]byte{1}, p.WindowSize()+2)
	_, err = Fragments(p, msg, 7, 2, 1)
	assert.ErrorIs(t, err, ErrWindowExhausted)

	// The windowed layout also refuses when the window bit is not enabled.
	msg = bytes.Repeat([]byte{1}, IETFDraft100.WindowSize()+2)
	_, err = Fragments(IETFDraft100, msg, 1, 1, 1)
	assert.ErrorIs(t, err, ErrWindowExhausted)
}

func TestFragmenter_Compact8(t *testing.T) {
	frags, err := Fragments(Compact8, []byte("ab"), 2, 3, 1)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	// 010|0011|0 then 010|0011|1
	assert.Equal(t, []byte{0x46, 'a'}, frags[0])
	assert.Equal(t, []byte{0x47, 'b'}, frags[1])

	_, err = Fragments(Compact8, []byte("abc"), 2, 3, 1)
	assert.ErrorIs(t, err, ErrWindowExhausted)
}

func TestFragmenter_VaryingCapacity(t *testing.T) {
	msg := []byte("0123456789abcdef")
	f, err := NewFragmenter(Extended16, msg, 1, 1)
	require.NoError(t, err)

	var got []byte
	for i, capacity := range []int{3, 1, 5, 100} {
		last, frag, err := f.NextFragment(capacity)
		require.NoError(t, err)
		got = append(got, frag[Extended16.HeaderBytes():]...)
		if last {
			assert.Equal(t, 3, i)
			break
		}
		assert.Len(t, frag, Extended16.HeaderBytes()+capacity)
	}
	assert.Equal(t, msg, got)
}

func TestFragmenter_EmptyMessage(t *testing.T) {
	frags, err := Fragments(Extended16, nil, 1, 1, 8)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, []byte{0x01, 0x1f}, frags[0])
}

func TestFragmenter_Errors(t *testing.T) {
	_, err := NewFragmenter(IETFDraft100, []byte("x"), 16, 0)
	assert.ErrorIs(t, err, ErrFieldOverflow)

	_, err = NewFragmenter(IETFDraft100, []byte("x"), 0, 16)
	assert.ErrorIs(t, err, ErrFieldOverflow)

	_, err = NewFragmenter(Extended16, []byte("x"), 0, 0, WithWindow())
	assert.ErrorIs(t, err, ErrFieldOverflow)

	f, err := NewFragmenter(Extended16, []byte("x"), 0, 0)
	require.NoError(t, err)
	_, _, err = f.NextFragment(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestFragmenter_IntegrityCheck(t *testing.T) {
	msg := []byte("Hello LoRa")
	frags, err := Fragments(IETFDraft100, msg, 1, 5, 4, WithWindow(), WithIntegrityCheck())
	require.NoError(t, err)
	require.Len(t, frags, 3)

	// Continuations are unchanged.
	assert.Equal(t, append([]byte{0x15, 0xfe}, "Hell"...), frags[0])

	final := frags[2]
	require.Len(t, final, 2+RCSLen+2)
	assert.Equal(t, Checksum(msg), binary.BigEndian.Uint32(final[2:6]))

	rcs, payload, err := SplitRCS(final[2:])
	require.NoError(t, err)
	assert.Equal(t, Checksum(msg), rcs)
	assert.Equal(t, []byte("Ra"), payload)

	_, _, err = SplitRCS([]byte{1, 2})
	assert.ErrorIs(t, err, ErrTruncatedHeader)
}
