package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ypatankar/datalake/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	_, err := NewBackend(Config{})
	require.Error(t, err)
}

func TestLabelsToTags(t *testing.T) {
	assert.Nil(t, labelsToTags(nil))
	assert.Equal(t,
		[]string{"job:sparkify", "sink:parquet", "table:songplay"},
		labelsToTags(metrics.Labels{"table": "songplay", "job": "sparkify", "sink": "parquet"}))
}

// TestBackend_SendsToAgent points the client at a local UDP socket standing in
// for the DogStatsD agent.
func TestBackend_SendsToAgent(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	b, err := NewBackend(Config{Addr: conn.LocalAddr().String(), Namespace: "datalake.", GlobalTags: []string{"env:test"}})
	require.NoError(t, err)

	b.IncCounter(metrics.TableRowsTotal, 42, metrics.Labels{"table": "user", "sink": "parquet"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 1.5, metrics.Labels{"step": "songs"})
	require.NoError(t, b.Flush())

	var got strings.Builder
	buf := make([]byte, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !strings.Contains(got.String(), "etl_step_duration_seconds") || !strings.Contains(got.String(), "etl_table_rows_total") {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			break
		}
		got.Write(buf[:n])
	}
	out := got.String()
	assert.Contains(t, out, "datalake.etl_table_rows_total:42|c")
	assert.Contains(t, out, "sink:parquet")
	assert.Contains(t, out, "env:test")
	assert.Contains(t, out, "datalake.etl_step_duration_seconds:1.5|h")
}

func TestBackend_ZeroValueIsSafe(t *testing.T) {
	var b Backend
	b.IncCounter("x", 1, nil)
	b.ObserveHistogram("x", 1, nil)
	assert.NoError(t, b.Flush())
}
