package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsConnectionLifecycle(t *testing.T) {
	m := NewMetrics()
	m.ConnectionEstablished("peer-a")
	m.ConnectionEstablished("peer-b")

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.ConnectedPeers)
	assert.Equal(t, uint64(2), snap.TotalConnections)
	assert.Equal(t, 2, snap.PeakConnections)

	m.ConnectionClosed("peer-a")
	snap = m.Snapshot()
	assert.Equal(t, 1, snap.ConnectedPeers)
	assert.Equal(t, 2, snap.PeakConnections) // peak doesn't shrink
}

func TestMetricsVerifiedPeerTracking(t *testing.T) {
	m := NewMetrics()
	m.ConnectionEstablished("peer-a")
	m.PeerVerified("peer-a", "cider/1.0.0")

	snap := m.Snapshot()
	require.Len(t, snap.Peers, 1)
	assert.True(t, snap.Peers[0].Verified)
	assert.Equal(t, 1, snap.VerifiedPeers)

	m.ConnectionClosed("peer-a")
	snap = m.Snapshot()
	assert.Equal(t, 0, snap.VerifiedPeers)
}

func TestMetricsReservationAndCircuitCounters(t *testing.T) {
	m := NewMetrics()
	m.ConnectionEstablished("peer-a")
	m.ReservationAccepted("peer-a")
	m.ReservationAccepted("peer-a") // idempotent for an already-reserved peer

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.ActiveReservations)
	assert.Equal(t, uint64(1), snap.TotalReservations)

	m.CircuitEstablished()
	m.CircuitEstablished()
	m.CircuitClosed()

	snap = m.Snapshot()
	assert.Equal(t, 1, snap.ActiveCircuits)
	assert.Equal(t, uint64(2), snap.TotalCircuits)

	m.ConnectionClosed("peer-a")
	snap = m.Snapshot()
	assert.Equal(t, 0, snap.ActiveReservations)
}

func TestMetricsLogRingIsBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < maxLogKept+10; i++ {
		m.Log(LogInfo, "entry")
	}
	snap := m.Snapshot()
	assert.Len(t, snap.Logs, maxLogKept)
}

func TestMetricsPortReachableTracksState(t *testing.T) {
	m := NewMetrics()
	snap := m.Snapshot()
	assert.Nil(t, snap.PortReachable)

	m.SetPortReachable(true)
	snap = m.Snapshot()
	require.NotNil(t, snap.PortReachable)
	assert.True(t, *snap.PortReachable)
}
