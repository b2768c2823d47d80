package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiverIsNoOp(t *testing.T) {
	var m *ServerMetrics

	require.NotPanics(t, func() {
		m.ConnectionAccepted()
		m.ConnectionRejected()
		m.SessionStarted()
		m.SessionEnded()
		m.CommandProcessed("UPLOAD", true)
		m.BytesUploaded(100)
		m.BytesDownloaded(100)
		m.SetTaskQueueDepth(3)
	})
}

func TestNewServerMetricsDisabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	assert.Nil(t, NewServerMetrics())
}

func TestInitRegistryIdempotent(t *testing.T) {
	InitRegistry()
	first := GetRegistry()
	require.NotNil(t, first)

	InitRegistry()
	assert.Same(t, first, GetRegistry())
	assert.True(t, IsEnabled())

	m := NewServerMetrics()
	require.NotNil(t, m)

	m.ConnectionAccepted()
	m.SessionStarted()
	m.CommandProcessed("LIST", true)
	m.BytesUploaded(42)
	m.SetTaskQueueDepth(1)

	families, err := first.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["depot_connections_accepted_total"])
	assert.True(t, names["depot_sessions_active"])
	assert.True(t, names["depot_commands_total"])
	assert.True(t, names["depot_bytes_uploaded_total"])
	assert.True(t, names["depot_task_queue_depth"])
}
