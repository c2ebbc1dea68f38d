package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunFragment_SingleFragment(t *testing.T) {
	var buf bytes.Buffer
	err := runFragment(fragmentOptions{profile: "ietf-draft-100", rule: 1, dtag: 5, capacity: 10, window: true}, []byte("Hello LoRa"), &buf)

	require.NoError(t, err)
	assert.Equal(t, "  0 rule=1 dtag=5 w=1 fcn=127 final 15ff48656c6c6f204c6f5261\n", buf.String())
}

func TestRunFragment_ThreeFragments(t *testing.T) {
	var buf bytes.Buffer
	err := runFragment(fragmentOptions{profile: "ietf-draft-100", rule: 1, dtag: 5, capacity: 4, window: true}, []byte("Hello LoRa"), &buf)

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "fcn=126 15fe48656c6c")
	assert.Contains(t, lines[1], "fcn=125 15fd6f204c6f")
	assert.Contains(t, lines[2], "fcn=127 final 15ff5261")
}

func TestRunFragment_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, runFragment(fragmentOptions{profile: "nope", capacity: 4}, []byte("x"), &buf))
	assert.Error(t, runFragment(fragmentOptions{profile: "compact-8", rule: 8, capacity: 4}, []byte("x"), &buf))
	assert.Error(t, runFragment(fragmentOptions{profile: "compact-8", capacity: 1}, []byte("abc"), &buf))
	assert.Error(t, runFragment(fragmentOptions{profile: "ietf-draft-100", capacity: 0}, []byte("abc"), &buf))
}

func TestRunFragment_PcapThenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	var buf bytes.Buffer
	err := runFragment(fragmentOptions{
		profile:  "ietf-draft-100",
		rule:     1,
		dtag:     5,
		capacity: 4,
		window:   true,
		pcapPath: path,
		src:      "10.0.0.1:40000",
		dst:      "10.0.0.2:5683",
	}, []byte("Hello LoRa"), &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "wrote 3 packet(s)")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	require.NoError(t, runReplay(f, replayOptions{profile: "ietf-draft-100", port: 5683, ttl: 60, tick: 1e9, format: "text"}, &out))
	assert.Contains(t, out.String(), `rule=1 dtag=5 len=10 "Hello LoRa"`)
	assert.Contains(t, out.String(), "packets=3 skipped=0 completed=1")
}

func TestReadMessage(t *testing.T) {
	msg, err := readMessage("plain")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), msg)

	path := filepath.Join(t.TempDir(), "msg.bin")
	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2}, 0644))
	msg, err = readMessage("@" + path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, msg)

	_, err = readMessage("@" + filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
