package relay

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus series, grounded on the teacher's internals/metrics package
// shape (promauto gauges/counters registered at package init).
var (
	connectedPeersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cider_relay_connected_peers",
		Help: "Current number of connected peers (verified and pending).",
	})
	verifiedPeersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cider_relay_verified_peers",
		Help: "Current number of peers verified as Cider clients.",
	})
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cider_relay_connections_total",
		Help: "Total connections accepted since start.",
	})
	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cider_relay_rejections_total",
		Help: "Total peers disconnected by the admission policy, by reason.",
	}, []string{"reason"})
	activeReservationsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cider_relay_active_reservations",
		Help: "Current active circuit-relay reservations.",
	})
	totalReservationsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cider_relay_reservations_total",
		Help: "Total circuit-relay reservations accepted since start.",
	})
	activeCircuitsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cider_relay_active_circuits",
		Help: "Current active relayed circuits.",
	})
	totalCircuitsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cider_relay_circuits_total",
		Help: "Total relayed circuits established since start.",
	})
	publicIPReachableGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cider_relay_port_reachable",
		Help: "1 if the advertised TCP port was confirmed reachable from the internet, 0 if not, -1 if unknown.",
	})
)

// PeerInfo is a connected peer's admission/reservation bookkeeping, kept
// for the dashboard's peer table.
type PeerInfo struct {
	PeerID          string
	ProtocolVersion string
	ConnectedAt     time.Time
	Verified        bool
	HasReservation  bool
}

// LogLevel classifies a dashboard LogEntry, mirroring the relay's
// original info/warning/error/connection/relay categories.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogWarn    LogLevel = "WARN"
	LogConn    LogLevel = "CONN"
	LogRelay   LogLevel = "RELAY"
	maxLogKept          = 100
)

// LogEntry is one dashboard log line.
type LogEntry struct {
	At      time.Time
	Level   LogLevel
	Message string
}

// Metrics is the relay's thread-safe operating snapshot: everything the
// dashboard or a /metrics scrape needs to know about the process's
// current state. Prometheus series above cover external scraping; this
// struct covers the terminal dashboard and programmatic introspection.
type Metrics struct {
	mu sync.Mutex

	startedAt time.Time
	peerID    string

	publicIP      string
	tcpPort       int
	quicPort      int
	portReachable *bool // nil = unknown

	peers map[string]*PeerInfo

	peakConnections    int
	totalConnections   uint64
	activeReservations int
	totalReservations  uint64
	activeCircuits     int
	totalCircuits      uint64

	logs []LogEntry
}

// NewMetrics returns a Metrics with its start time set to now.
func NewMetrics() *Metrics {
	publicIPReachableGauge.Set(-1)
	return &Metrics{
		startedAt: time.Now(),
		peers:     make(map[string]*PeerInfo),
	}
}

func (m *Metrics) SetPeerID(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerID = id
}

func (m *Metrics) SetPorts(tcp, quic int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tcpPort, m.quicPort = tcp, quic
}

func (m *Metrics) SetPublicIP(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicIP = ip
}

func (m *Metrics) SetPortReachable(reachable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portReachable = &reachable
	if reachable {
		publicIPReachableGauge.Set(1)
	} else {
		publicIPReachableGauge.Set(0)
	}
}

// Log appends a dashboard log line, evicting the oldest once the buffer
// exceeds maxLogKept, mirroring the relay's original bounded log ring.
func (m *Metrics) Log(level LogLevel, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, LogEntry{At: time.Now(), Level: level, Message: message})
	if len(m.logs) > maxLogKept {
		m.logs = m.logs[len(m.logs)-maxLogKept:]
	}
}

// ConnectionEstablished records a newly connected (not yet verified)
// peer. Multiple transports to an already-tracked peer don't double
// count, matching the original relay's per-peer accounting.
func (m *Metrics) ConnectionEstablished(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[peerID]; ok {
		return
	}
	m.peers[peerID] = &PeerInfo{PeerID: peerID, ConnectedAt: time.Now()}
	m.totalConnections++
	if len(m.peers) > m.peakConnections {
		m.peakConnections = len(m.peers)
	}
	connectedPeersGauge.Set(float64(len(m.peers)))
	connectionsTotal.Inc()
}

// ConnectionClosed removes a peer's bookkeeping and releases any
// reservation it held.
func (m *Metrics) ConnectionClosed(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		return
	}
	if p.HasReservation && m.activeReservations > 0 {
		m.activeReservations--
		activeReservationsGauge.Set(float64(m.activeReservations))
	}
	delete(m.peers, peerID)
	connectedPeersGauge.Set(float64(len(m.peers)))
	if p.Verified {
		verifiedPeersGauge.Dec()
	}
}

// PeerVerified marks a peer as having identified with a Cider protocol
// version.
func (m *Metrics) PeerVerified(peerID, protocolVersion string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		p = &PeerInfo{PeerID: peerID, ConnectedAt: time.Now()}
		m.peers[peerID] = p
	}
	if !p.Verified {
		verifiedPeersGauge.Inc()
	}
	p.Verified = true
	p.ProtocolVersion = protocolVersion
}

// PeerRejected records a disconnection the admission policy triggered,
// by reason ("non_cider" or "identify_timeout").
func (m *Metrics) PeerRejected(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// ReservationAccepted records a circuit-relay reservation for peerID.
// A renewal for an already-reserved peer doesn't double count.
func (m *Metrics) ReservationAccepted(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[peerID]
	if !ok {
		return
	}
	if p.HasReservation {
		return
	}
	p.HasReservation = true
	m.activeReservations++
	m.totalReservations++
	activeReservationsGauge.Set(float64(m.activeReservations))
	totalReservationsCounter.Inc()
}

// CircuitEstablished records a relayed circuit opening between two peers.
func (m *Metrics) CircuitEstablished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCircuits++
	m.totalCircuits++
	activeCircuitsGauge.Set(float64(m.activeCircuits))
	totalCircuitsCounter.Inc()
}

// CircuitClosed records a relayed circuit closing.
func (m *Metrics) CircuitClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeCircuits > 0 {
		m.activeCircuits--
	}
	activeCircuitsGauge.Set(float64(m.activeCircuits))
}

// Uptime returns how long the relay has been running.
func (m *Metrics) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.startedAt)
}

// Snapshot is a point-in-time copy of Metrics state for rendering.
type Snapshot struct {
	PeerID             string
	Uptime             time.Duration
	PublicIP           string
	TCPPort            int
	QUICPort           int
	PortReachable      *bool
	ConnectedPeers     int
	VerifiedPeers      int
	PeakConnections    int
	TotalConnections   uint64
	ActiveReservations int
	TotalReservations  uint64
	ActiveCircuits     int
	TotalCircuits      uint64
	Peers              []PeerInfo
	Logs               []LogEntry
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	verified := 0
	peers := make([]PeerInfo, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, *p)
		if p.Verified {
			verified++
		}
	}
	logs := make([]LogEntry, len(m.logs))
	copy(logs, m.logs)
	return Snapshot{
		PeerID:             m.peerID,
		Uptime:             time.Since(m.startedAt),
		PublicIP:           m.publicIP,
		TCPPort:            m.tcpPort,
		QUICPort:           m.quicPort,
		PortReachable:      m.portReachable,
		ConnectedPeers:     len(m.peers),
		VerifiedPeers:      verified,
		PeakConnections:    m.peakConnections,
		TotalConnections:   m.totalConnections,
		ActiveReservations: m.activeReservations,
		TotalReservations:  m.totalReservations,
		ActiveCircuits:     m.activeCircuits,
		TotalCircuits:      m.totalCircuits,
		Peers:              peers,
		Logs:               logs,
	}
}
