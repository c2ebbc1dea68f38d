package reassembly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/schc/internal/schc"
)

func TestBufferAssemblesByPosition(t *testing.T) {
	b := NewBuffer(60, 0)

	assert.Equal(t, Accepted, b.Receive(1, false, []byte("o Lo")))
	assert.False(t, b.IsComplete())
	assert.Equal(t, Accepted, b.Receive(0, true, []byte("Ra")))
	assert.False(t, b.IsComplete(), "gap at position 0")
	assert.Equal(t, Accepted, b.Receive(0, false, []byte("Hell")))
	require.True(t, b.IsComplete())

	msg, err := b.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "Hello LoRa", string(msg))
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 10, b.Bytes())
}

func TestBufferDuplicateLeavesStateUnchanged(t *testing.T) {
	b := NewBuffer(60, 0)

	require.Equal(t, Accepted, b.Receive(0, false, []byte("ab")))
	assert.Equal(t, Duplicate, b.Receive(0, false, []byte("XX")))
	require.Equal(t, Accepted, b.Receive(0, true, []byte("c")))
	assert.Equal(t, Duplicate, b.Receive(0, true, []byte("Z")))

	msg, err := b.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(msg))
	assert.Equal(t, 3, b.Bytes())
}

func TestBufferCopiesPayload(t *testing.T) {
	b := NewBuffer(60, 0)
	src := []byte("xy")
	b.Receive(0, true, src)
	src[0] = 'q'

	msg, err := b.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "xy", string(msg))
}

func TestBufferAssembleNotComplete(t *testing.T) {
	b := NewBuffer(60, 0)
	b.Receive(0, false, []byte("ab"))

	_, err := b.Assemble()
	assert.ErrorIs(t, err, ErrNotComplete)
}

func TestBufferTick(t *testing.T) {
	b := NewBuffer(3, 0)
	assert.True(t, b.Tick())
	assert.True(t, b.Tick())
	b.Touch()
	assert.True(t, b.Tick())
	assert.True(t, b.Tick())
	assert.False(t, b.Tick())
}

func TestBufferChecksumGatesCompletion(t *testing.T) {
	b := NewBuffer(60, 0)
	b.Receive(0, true, []byte("Ra"))
	b.SetChecksum(schc.Checksum([]byte("Hello LoRa")))
	assert.False(t, b.IsComplete())

	b.Receive(0, false, []byte("Hell"))
	assert.False(t, b.IsComplete())
	b.Receive(1, false, []byte("o Lo"))
	require.True(t, b.IsComplete())

	msg, err := b.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "Hello LoRa", string(msg))
}

func TestBufferWindowPositions(t *testing.T) {
	const w = 2
	b := NewBuffer(60, w)

	// window 0 carries bit 1, window 1 bit 0, window 2 bit 1 again
	assert.Equal(t, 0, b.Position(1, 0, false))
	assert.Equal(t, 1, b.Position(1, 1, false))
	b.Receive(0, false, []byte("a"))
	b.Receive(1, false, []byte("b"))
	assert.Equal(t, 2, b.Position(0, 0, false))
	b.Receive(2, false, []byte("c"))

	// late piece from window 0 while window 0 has room is placed there
	late := NewBuffer(60, w)
	late.Receive(late.Position(1, 0, false), false, []byte("a"))
	assert.Equal(t, 2, late.Position(0, 0, false))
	late.Receive(2, false, []byte("c"))
	assert.Equal(t, 1, late.Position(1, 1, false))

	b.Receive(3, false, []byte("d"))
	assert.Equal(t, 4, b.Position(1, 0, false), "window 0 full, bit 1 starts window 2")
	assert.Equal(t, 4, b.Position(1, 0, true))
}

func TestBufferReplayFromFullPreviousWindow(t *testing.T) {
	const w = 4
	b := NewBuffer(60, w)
	for off := 0; off < w; off++ {
		require.Equal(t, Accepted, b.Receive(b.Position(1, off, false), false, []byte{byte(off)}))
	}
	require.Equal(t, Accepted, b.Receive(b.Position(0, 0, false), false, []byte("n")))

	// bit 1 again, window 1 has barely started: this is window 0 repeating
	pos := b.Position(1, 1, false)
	assert.Equal(t, 1, pos)
	assert.Equal(t, Duplicate, b.Receive(pos, false, []byte{1}))
	assert.Equal(t, 5, b.Position(0, 1, false), "current window unchanged")

	// once window 1 is nearly done, bit 1 moves on to window 2
	b.Receive(5, false, []byte("o"))
	b.Receive(6, false, []byte("p"))
	assert.Equal(t, 8, b.Position(1, 0, false))
}

func TestBufferTerminalWindowMustFollowContinuations(t *testing.T) {
	const w = 2
	b := NewBuffer(60, w)

	b.Receive(b.Position(1, 0, false), false, []byte("a"))
	b.Receive(b.Position(1, 1, false), false, []byte("b"))
	// two continuations fill window 0; a terminal claiming window 0 is
	// inconsistent
	b.Receive(0, true, []byte("z"))
	assert.False(t, b.IsComplete())

	ok := NewBuffer(60, w)
	ok.Receive(ok.Position(1, 0, false), false, []byte("a"))
	ok.Receive(ok.Position(1, 1, false), false, []byte("b"))
	ok.Receive(ok.Position(0, 0, true), true, []byte("z"))
	require.True(t, ok.IsComplete())
	msg, err := ok.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "abz", string(msg))
}

func TestBufferUnwindowedSenderOnWindowedProfile(t *testing.T) {
	// a sender that never sets the window bit sends bit 0 throughout
	b := NewBuffer(60, 126)
	b.Receive(b.Position(0, 0, false), false, []byte("a"))
	b.Receive(b.Position(0, 1, false), false, []byte("b"))
	b.Receive(b.Position(0, 0, true), true, []byte("c"))

	require.True(t, b.IsComplete())
	msg, err := b.Assemble()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(msg))
}
