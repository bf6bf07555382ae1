// Package relay implements the standalone circuit-relay / rendezvous
// service (§4.8): a long-running libp2p node offering relay, identify,
// ping and DHT participation to NAT-constrained Cider session nodes,
// gated by a Cider-only admission policy.
package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/identify"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"go.uber.org/zap"
)

// Server is the relay process's libp2p node plus its admission state
// machine and metrics.
type Server struct {
	host     host.Host
	dht      *dht.IpfsDHT
	identify *identify.IDService
	pingSvc  *ping.PingService
	logger   *zap.Logger
	Metrics  *Metrics

	cfg Config

	mu      sync.Mutex
	pending map[peer.ID]time.Time
	verified map[peer.ID]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New assembles the relay's libp2p host: TCP + QUIC transports, relay
// service (server side), identify, ping, and a server-mode DHT.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Identity == nil {
		return nil, fmt.Errorf("relay: Config.Identity is required")
	}

	cm, err := connmgr.NewConnManager(128, 1024, connmgr.WithGracePeriod(idleConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("relay: connection manager: %w", err)
	}

	listenAddrs := []string{
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.TCPPort),
		fmt.Sprintf("/ip6/::/tcp/%d", cfg.TCPPort),
		fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", cfg.QUICPort),
		fmt.Sprintf("/ip6/::/udp/%d/quic-v1", cfg.QUICPort),
	}

	h, err := libp2p.New(
		libp2p.Identity(cfg.Identity),
		libp2p.ProtocolVersion(protocolVersion),
		libp2p.DefaultTransports,
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.EnableRelayService(),
		libp2p.ConnectionManager(cm),
		libp2p.WithDialTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: build host: %w", err)
	}

	kadDHT, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("relay: build dht: %w", err)
	}

	idServ, err := identify.NewIDService(h, identify.UserAgent("cider-relay"))
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("relay: identify service: %w", err)
	}
	idServ.Start()

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		host:     h,
		dht:      kadDHT,
		identify: idServ,
		pingSvc:  ping.NewPingService(h),
		logger:   logger,
		Metrics:  NewMetrics(),
		cfg:      cfg,
		pending:  make(map[peer.ID]time.Time),
		verified: make(map[peer.ID]bool),
		ctx:      serverCtx,
		cancel:   cancel,
	}
	s.Metrics.SetPeerID(h.ID().String())
	s.Metrics.SetPorts(cfg.TCPPort, cfg.QUICPort)
	return s, nil
}

// Host exposes the underlying libp2p host for diagnostics.
func (s *Server) Host() host.Host { return s.host }

// Run starts the admission loop and public-reachability check, and
// blocks until ctx is cancelled or Close is called.
func (s *Server) Run(ctx context.Context) error {
	if err := s.dht.Bootstrap(s.ctx); err != nil {
		s.logger.Warn("relay: dht bootstrap", zap.Error(err))
	}

	s.host.Network().Notify(&network.NotifyBundle{
		ConnectedF:    s.onConnected,
		DisconnectedF: s.onDisconnected,
	})

	go s.identifyLoop()
	go s.sweepLoop()
	go s.detectReachability()

	select {
	case <-ctx.Done():
	case <-s.ctx.Done():
	}
	return nil
}

// Close tears down the relay's host and background loops.
func (s *Server) Close() error {
	s.cancel()
	s.identify.Close()
	if err := s.dht.Close(); err != nil {
		s.logger.Debug("relay: dht close", zap.Error(err))
	}
	return s.host.Close()
}

func (s *Server) onConnected(_ network.Network, conn network.Conn) {
	p := conn.RemotePeer()
	short := truncatePeerID(p.String())

	s.mu.Lock()
	alreadyVerified := s.verified[p]
	if !alreadyVerified {
		if _, pending := s.pending[p]; !pending {
			s.pending[p] = time.Now()
		}
	}
	s.mu.Unlock()

	s.Metrics.ConnectionEstablished(p.String())
	if alreadyVerified {
		s.logger.Info("relay: peer connected", zap.String("peer", short), zap.Bool("verified", true))
	} else {
		s.logger.Info("relay: peer connected", zap.String("peer", short), zap.Bool("verified", false))
		s.Metrics.Log(LogConn, fmt.Sprintf("connected: %s", short))
	}

	// A "limited" connection is one relayed through this node's circuit
	// service rather than dialed directly; go-libp2p doesn't surface a
	// separate reservation/circuit event stream, so this is the closest
	// available proxy for the relay/circuit counters in §4.8.
	if conn.Stat().Limited {
		s.Metrics.ReservationAccepted(p.String())
		s.Metrics.CircuitEstablished()
		s.Metrics.Log(LogRelay, fmt.Sprintf("circuit: %s", short))
	}
}

func (s *Server) onDisconnected(_ network.Network, conn network.Conn) {
	p := conn.RemotePeer()
	if conn.Stat().Limited {
		s.Metrics.CircuitClosed()
	}
	if s.host.Network().Connectedness(p) == network.Connected {
		return // another transport to the same peer is still up
	}
	s.mu.Lock()
	delete(s.pending, p)
	delete(s.verified, p)
	s.mu.Unlock()

	s.Metrics.ConnectionClosed(p.String())
	s.Metrics.Log(LogConn, fmt.Sprintf("disconnected: %s", truncatePeerID(p.String())))
}

// identifyLoop applies the Cider-only admission policy: any peer whose
// advertised protocol version doesn't contain "cider" is disconnected
// the moment it identifies.
func (s *Server) identifyLoop() {
	sub, err := s.host.EventBus().Subscribe(new(event.EvtPeerIdentificationCompleted))
	if err != nil {
		s.logger.Warn("relay: subscribe identify events failed", zap.Error(err))
		return
	}
	defer sub.Close()

	for {
		select {
		case <-s.ctx.Done():
			return
		case raw, ok := <-sub.Out():
			if !ok {
				return
			}
			evt := raw.(event.EvtPeerIdentificationCompleted)
			s.handleIdentify(evt)
		}
	}
}

func (s *Server) handleIdentify(evt event.EvtPeerIdentificationCompleted) {
	p := evt.Peer
	short := truncatePeerID(p.String())

	s.mu.Lock()
	if s.verified[p] {
		s.mu.Unlock()
		return // identify can fire more than once per connection
	}
	isCider := strings.Contains(strings.ToLower(evt.ProtocolVersion), ciderSubstring)
	if isCider {
		s.verified[p] = true
		delete(s.pending, p)
	} else {
		delete(s.pending, p)
	}
	s.mu.Unlock()

	if isCider {
		s.logger.Info("relay: verified cider peer", zap.String("peer", short), zap.String("protocol", evt.ProtocolVersion))
		s.Metrics.PeerVerified(p.String(), evt.ProtocolVersion)
		s.Metrics.Log(LogInfo, fmt.Sprintf("verified: %s (%s)", short, evt.ProtocolVersion))
		return
	}

	s.logger.Warn("relay: rejecting non-cider peer", zap.String("peer", short), zap.String("protocol", evt.ProtocolVersion))
	s.Metrics.PeerRejected("non_cider")
	s.Metrics.Log(LogWarn, fmt.Sprintf("rejected: %s (non-cider: %s)", short, evt.ProtocolVersion))
	_ = s.host.Network().ClosePeer(p)
}

// sweepLoop disconnects any peer that has been connected for more than
// identifyTimeout without identifying.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweepPending()
		}
	}
}

func (s *Server) sweepPending() {
	now := time.Now()
	var timedOut []peer.ID

	s.mu.Lock()
	for p, connectedAt := range s.pending {
		if now.Sub(connectedAt) > identifyTimeout {
			timedOut = append(timedOut, p)
		}
	}
	for _, p := range timedOut {
		delete(s.pending, p)
	}
	s.mu.Unlock()

	for _, p := range timedOut {
		short := truncatePeerID(p.String())
		s.logger.Warn("relay: disconnecting unidentified peer", zap.String("peer", short))
		s.Metrics.PeerRejected("identify_timeout")
		s.Metrics.Log(LogWarn, fmt.Sprintf("rejected: %s (identify timeout)", short))
		_ = s.host.Network().ClosePeer(p)
	}
}

// detectReachability resolves the relay's public IP via a best-effort
// HTTP echo lookup, records it in Metrics, then kicks a background
// port-reachability check. The IP is not added to the host's advertised
// addresses. Neither outcome gates operation (§4.8).
func (s *Server) detectReachability() {
	ip := detectPublicIP(s.ctx)
	if ip == "" {
		s.logger.Warn("relay: could not detect public ip")
		s.Metrics.Log(LogWarn, "could not detect public IP")
		return
	}
	s.logger.Info("relay: public ip detected", zap.String("ip", ip))
	s.Metrics.SetPublicIP(ip)
	s.Metrics.Log(LogInfo, fmt.Sprintf("public IP: %s", ip))

	// The external address itself reaches clients via identify's own
	// observed-address mechanism (each inbound peer reports back what
	// address it saw us dial from); the relay only needs the raw IP for
	// metrics and the reachability probe below.

	go func() {
		time.Sleep(2 * time.Second)
		reachable := checkPortReachable(s.ctx, ip, s.cfg.TCPPort)
		s.Metrics.SetPortReachable(reachable)
		if reachable {
			s.logger.Info("relay: tcp port reachable", zap.Int("port", s.cfg.TCPPort))
			s.Metrics.Log(LogInfo, fmt.Sprintf("TCP port %d is reachable", s.cfg.TCPPort))
		} else {
			s.logger.Warn("relay: tcp port not reachable", zap.Int("port", s.cfg.TCPPort))
			s.Metrics.Log(LogWarn, fmt.Sprintf("TCP port %d NOT reachable - check firewall", s.cfg.TCPPort))
		}
	}()
}

func truncatePeerID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-4:]
}
