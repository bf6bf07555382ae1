// Package latency maintains a smoothed per-peer one-way latency estimate
// from ping/pong round trips.
package latency

import (
	"container/ring"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// MaxSamples is the size of each peer's bounded RTT sample ring.
const MaxSamples = 5

// PendingTTL is how long an outstanding ping is kept before it is
// considered abandoned and purged.
const PendingTTL = 10 * time.Second

// DefaultOneWayMs is the one-way latency assumed for a peer with no
// measured samples yet (including the designated host before its first
// pong arrives).
const DefaultOneWayMs = 10

type peerSamples struct {
	samples *ring.Ring // of float64 rtt-ms, up to MaxSamples long
	count   int
	sum     float64
	avg     float64
}

func newPeerSamples() *peerSamples {
	return &peerSamples{samples: ring.New(MaxSamples)}
}

func (p *peerSamples) add(rttMs float64) {
	if p.count == MaxSamples {
		evicted, _ := p.samples.Value.(float64)
		p.sum -= evicted
	} else {
		p.count++
	}
	p.samples.Value = rttMs
	p.samples = p.samples.Next()
	p.sum += rttMs
	p.avg = p.sum / float64(p.count)
}

// Estimator tracks per-peer RTT via ping/pong and derives a one-way
// latency estimate for a designated host peer. It does not attempt clock
// synchronization: every comparison elsewhere in the system anchors on
// the sender's own timestamp plus the receiver's wall-clock delta, so
// only the network delay between capture and arrival needs compensating
// here.
type Estimator struct {
	mu      sync.Mutex
	samples map[peer.ID]*peerSamples
	pending map[int64]time.Time // ping sent-at-ms -> local monotonic instant
	host    peer.ID
	hasHost bool
}

// New creates an empty Estimator.
func New() *Estimator {
	return &Estimator{
		samples: make(map[peer.ID]*peerSamples),
		pending: make(map[int64]time.Time),
	}
}

// SetHost designates which peer's latency is reported by HostLatencyMs.
func (e *Estimator) SetHost(p peer.ID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.host = p
	e.hasHost = true
}

// CreatePing purges any pending ping older than PendingTTL, records a new
// pending entry keyed by the current wall-clock timestamp, and returns
// that timestamp for the caller to place in the outgoing Ping message.
func (e *Estimator) CreatePing() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for ts, sentAt := range e.pending {
		if now.Sub(sentAt) > PendingTTL {
			delete(e.pending, ts)
		}
	}

	tsMs := now.UnixMilli()
	e.pending[tsMs] = now
	return tsMs
}

// HandlePong looks up the pending ping for originalTimestampMs. If found,
// it computes the RTT from the monotonic delta since the ping was
// created, drops the pending entry, records the sample for fromPeer, and
// returns the raw RTT in milliseconds. If the ping was never sent (or has
// since expired), it returns ok=false.
func (e *Estimator) HandlePong(fromPeer peer.ID, originalTimestampMs int64) (rttMs float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sentAt, found := e.pending[originalTimestampMs]
	if !found {
		return 0, false
	}
	delete(e.pending, originalTimestampMs)

	rtt := float64(time.Since(sentAt).Microseconds()) / 1000.0

	ps, ok := e.samples[fromPeer]
	if !ok {
		ps = newPeerSamples()
		e.samples[fromPeer] = ps
	}
	ps.add(rtt)

	return rtt, true
}

// HostLatencyMs returns the one-way latency estimate for the designated
// host: half the average measured RTT, or DefaultOneWayMs if no host is
// designated or no sample has been measured yet.
func (e *Estimator) HostLatencyMs() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasHost {
		return DefaultOneWayMs
	}
	ps, ok := e.samples[e.host]
	if !ok || ps.count == 0 {
		return DefaultOneWayMs
	}
	return ps.avg / 2
}

// PendingCount returns the number of outstanding pings, for tests that
// want to assert bounded growth.
func (e *Estimator) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
