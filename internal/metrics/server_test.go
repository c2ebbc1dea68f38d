package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerExposesMetrics(t *testing.T) {
	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	FragmentsReceivedTotal.WithLabelValues(StatusCompleted).Inc()
	MessagesCompletedTotal.Inc()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `schc_fragments_received_total{status="completed"}`))
	assert.True(t, strings.Contains(string(body), "schc_messages_completed_total"))
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer(":0", "/m").Stop(context.Background()))
}

func TestStartListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "")
	assert.Error(t, s.Start(context.Background()))
}
