package cmd

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/schc"
	"firestige.xyz/schc/internal/source/pcap"
)

func capture(t *testing.T, packets func(w *pcap.Writer)) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w, err := pcap.NewWriter(&buf,
		&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 40000},
		&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5683})
	require.NoError(t, err)
	packets(w)
	return &buf
}

func TestRunReplay_ExpiresByCaptureTime(t *testing.T) {
	p := schc.IETFDraft100
	stale, err := schc.Fragments(p, []byte("abandoned message"), 2, 7, 4)
	require.NoError(t, err)
	fresh, err := schc.Fragments(p, []byte("fresh"), 2, 7, 8)
	require.NoError(t, err)

	base := time.Unix(1700000000, 0)
	buf := capture(t, func(w *pcap.Writer) {
		require.NoError(t, w.Write(base, stale[0]))
		// 61 seconds later the partial buffer is gone
		require.NoError(t, w.Write(base.Add(61*time.Second), fresh[0]))
		require.NoError(t, w.Write(base.Add(62*time.Second), stale[1]))
	})

	var out bytes.Buffer
	require.NoError(t, runReplay(buf, replayOptions{profile: p.Name, ttl: 60, tick: time.Second, format: "text"}, &out))

	assert.Contains(t, out.String(), `rule=2 dtag=7 len=5 "fresh"`)
	assert.Contains(t, out.String(), "completed=1 duplicates=0 malformed=0 expired=1 incomplete=1")
}

func TestRunReplay_HexAndDuplicates(t *testing.T) {
	p := schc.IETFDraft100
	frags, err := schc.Fragments(p, []byte{0xca, 0xfe, 0xba, 0xbe}, 1, 1, 2, schc.WithIntegrityCheck())
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	buf := capture(t, func(w *pcap.Writer) {
		require.NoError(t, w.Write(now, frags[0]))
		require.NoError(t, w.Write(now, frags[0]))
		require.NoError(t, w.Write(now, frags[1]))
	})

	var out bytes.Buffer
	require.NoError(t, runReplay(buf, replayOptions{profile: p.Name, ttl: 60, tick: time.Second, integrity: true, format: "hex"}, &out))
	assert.Contains(t, out.String(), "len=4 cafebabe")
	assert.Contains(t, out.String(), "completed=1 duplicates=1")
}

func TestRunReplay_LogsRejectedFragments(t *testing.T) {
	p := schc.IETFDraft100
	now := time.Unix(1700000000, 0)
	buf := capture(t, func(w *pcap.Writer) {
		require.NoError(t, w.Write(now, []byte{0x15}))
	})

	var logs bytes.Buffer
	logger, err := log.New(config.LogConfig{Level: "debug", Format: "text"}, &logs)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runReplay(buf, replayOptions{profile: p.Name, ttl: 60, tick: time.Second, format: "text", logger: logger}, &out))
	assert.Contains(t, out.String(), "malformed=1")
	assert.Contains(t, logs.String(), "fragment not accepted")
	assert.Contains(t, logs.String(), "truncated header")
	assert.Contains(t, logs.String(), "status=malformed")
}

func TestRunReplay_Errors(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runReplay(bytes.NewReader(nil), replayOptions{profile: "nope", tick: time.Second}, &out))
	assert.Error(t, runReplay(bytes.NewReader(nil), replayOptions{profile: "compact-8", tick: 0}, &out))
	assert.Error(t, runReplay(bytes.NewReader([]byte("garbage")), replayOptions{profile: "compact-8", tick: time.Second}, &out))
}
