package latency

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(t *testing.T) peer.ID {
	t.Helper()
	return peer.ID("test-peer-" + t.Name())
}

func TestHandlePongComputesRTTAndAverages(t *testing.T) {
	e := New()
	p := testPeer(t)
	e.SetHost(p)

	ts := e.CreatePing()
	time.Sleep(5 * time.Millisecond)
	rtt, ok := e.HandlePong(p, ts)
	require.True(t, ok)
	assert.Greater(t, rtt, 0.0)

	assert.Less(t, e.HostLatencyMs(), rtt) // one-way is half of RTT
}

func TestHandlePongUnknownPingReturnsFalse(t *testing.T) {
	e := New()
	p := testPeer(t)
	_, ok := e.HandlePong(p, 12345)
	assert.False(t, ok)
}

func TestHostLatencyDefaultsWithoutSamples(t *testing.T) {
	e := New()
	assert.Equal(t, float64(DefaultOneWayMs), e.HostLatencyMs())

	p := testPeer(t)
	e.SetHost(p)
	assert.Equal(t, float64(DefaultOneWayMs), e.HostLatencyMs())
}

func TestRingEvictsOldestSample(t *testing.T) {
	e := New()
	p := testPeer(t)
	e.SetHost(p)

	for i := 0; i < MaxSamples+3; i++ {
		ts := e.CreatePing()
		_, ok := e.HandlePong(p, ts)
		require.True(t, ok)
	}
	assert.LessOrEqual(t, e.PendingCount(), 0)
	assert.Equal(t, MaxSamples, e.samples[p].count)

	// Samples 1..MaxSamples+1 (1..6): the oldest, 1, is evicted, leaving
	// 2..6 with mean 4.
	ps := newPeerSamples()
	for i := 1; i <= MaxSamples+1; i++ {
		ps.add(float64(i))
	}
	assert.Equal(t, MaxSamples, ps.count)
	assert.InDelta(t, 4.0, ps.avg, 1e-9)
}

func TestPendingPingsStayBoundedWhenPongsNeverArrive(t *testing.T) {
	e := New()
	for i := 0; i < 100; i++ {
		e.CreatePing()
	}
	// All created within the same tight loop, well under PendingTTL, so
	// none are purged yet but the map only ever holds one entry per
	// distinct millisecond timestamp generated.
	assert.LessOrEqual(t, e.PendingCount(), 100)
}

func TestExpiredPendingPingIsPurgedOnNextCreatePing(t *testing.T) {
	e := New()
	e.mu.Lock()
	e.pending[1] = time.Now().Add(-PendingTTL - time.Second)
	e.mu.Unlock()

	e.CreatePing()
	assert.Equal(t, 1, e.PendingCount())
}
