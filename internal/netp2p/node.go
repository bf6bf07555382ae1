// Package netp2p assembles the libp2p swarm (transports, pub/sub, mDNS,
// DHT, relay/hole-punch) and serializes room and pub/sub mutation through
// a single event-loop goroutine, per the command/event channel contract.
// Dials of discovered peers and relay reservations run on the discovery
// and identify goroutines.
package netp2p

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	routedhost "github.com/libp2p/go-libp2p/p2p/host/routed"
	connmgr "github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/identify"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// idleConnTimeout keeps relay reservations alive across quiet periods.
const idleConnTimeout = 300 * time.Second

// livenessPingInterval matches spec's overlay-wide liveness ping cadence.
const livenessPingInterval = 15 * time.Second

// Node owns the libp2p host and the single goroutine permitted to mutate
// it. All interaction from the rest of the process happens through
// Commands()/Events().
type Node struct {
	host     host.Host
	dht      *dht.IpfsDHT
	ps       *pubsub.PubSub
	identify *identify.IDService
	pingSvc  *ping.PingService
	mdns     mdns.Service
	logger   *zap.Logger

	cmdCh chan Command
	evtCh chan Event

	ctx    context.Context
	cancel context.CancelFunc

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	roomCode   string
	provideCancel context.CancelFunc
}

// New assembles the libp2p host per §4.6 and starts its event loop. The
// returned Node must eventually have its Commands() channel sent
// CmdShutdown (or ctx cancelled) to release resources.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	priv := cfg.Identity
	if priv == nil {
		var err error
		priv, _, err = crypto.GenerateEd25519Key(nil)
		if err != nil {
			return nil, fmt.Errorf("netp2p: generate identity: %w", err)
		}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "cider-sync"
	}

	listenAddrs, err := listenAddrStrings(cfg.ListenPort)
	if err != nil {
		return nil, fmt.Errorf("netp2p: listen addrs: %w", err)
	}

	cm, err := connmgr.NewConnManager(64, 256, connmgr.WithGracePeriod(idleConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("netp2p: connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.UserAgent(userAgent),
		libp2p.ProtocolVersion(ProtocolVersion),
		libp2p.DefaultTransports,
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.ListenAddrStrings(listenAddrs...),
		libp2p.NATPortMap(),
		libp2p.EnableRelay(),
		libp2p.EnableHolePunching(),
		libp2p.ConnectionManager(cm),
	}

	if relays, err := parseAddrInfos(cfg.RelayAddrs); err == nil && len(relays) > 0 {
		opts = append(opts, libp2p.EnableAutoRelayWithStaticRelays(relays))
	} else if err != nil {
		logger.Warn("netp2p: ignoring invalid relay addrs", zap.Error(err))
	}

	basicHost, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("netp2p: build host: %w", err)
	}

	bootstrap, err := bootstrapPeers(cfg.BootstrapPeers)
	if err != nil {
		_ = basicHost.Close()
		return nil, fmt.Errorf("netp2p: bootstrap peers: %w", err)
	}

	kadDHT, err := dht.New(ctx, basicHost,
		dht.Mode(dht.ModeAuto),
		dht.BootstrapPeers(bootstrap...),
	)
	if err != nil {
		_ = basicHost.Close()
		return nil, fmt.Errorf("netp2p: build dht: %w", err)
	}

	routedHost := routedhost.Wrap(basicHost, kadDHT)

	idServ, err := identify.NewIDService(routedHost, identify.UserAgent(userAgent))
	if err != nil {
		_ = basicHost.Close()
		return nil, fmt.Errorf("netp2p: identify service: %w", err)
	}
	idServ.Start()

	ps, err := pubsub.NewGossipSub(ctx, routedHost,
		pubsub.WithPeerExchange(false),
		pubsub.WithGossipSubParams(gossipParams()),
	)
	if err != nil {
		_ = basicHost.Close()
		return nil, fmt.Errorf("netp2p: gossipsub: %w", err)
	}

	nodeCtx, cancel := context.WithCancel(ctx)
	n := &Node{
		host:     routedHost,
		dht:      kadDHT,
		ps:       ps,
		identify: idServ,
		pingSvc:  ping.NewPingService(routedHost),
		logger:   logger,
		cmdCh:    make(chan Command, 16),
		evtCh:    make(chan Event, 64),
		ctx:      nodeCtx,
		cancel:   cancel,
	}

	notifee := &mdnsNotifee{node: n}
	n.mdns = mdns.NewMdnsService(routedHost, "cider-mdns", notifee)
	if err := n.mdns.Start(); err != nil {
		logger.Warn("netp2p: mdns start failed, continuing without LAN discovery", zap.Error(err))
	}

	go n.run(bootstrap)

	return n, nil
}

func gossipParams() pubsub.GossipSubParams {
	p := pubsub.DefaultGossipSubParams()
	p.D = 3
	p.Dlo = 1
	p.Dhi = 6
	p.DOutbound = 0
	p.DLazy = 3
	p.HeartbeatInterval = time.Second
	return p
}

func listenAddrStrings(port int) ([]string, error) {
	if port <= 0 {
		return []string{
			"/ip4/0.0.0.0/tcp/0",
			"/ip6/::/tcp/0",
			"/ip4/0.0.0.0/udp/0/quic-v1",
			"/ip6/::/udp/0/quic-v1",
		}, nil
	}
	return []string{
		fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", port),
		fmt.Sprintf("/ip6/::/tcp/%d", port),
		fmt.Sprintf("/ip4/0.0.0.0/udp/%d/quic-v1", port),
		fmt.Sprintf("/ip6/::/udp/%d/quic-v1", port),
	}, nil
}

func parseAddrInfos(addrs []string) ([]peer.AddrInfo, error) {
	out := make([]peer.AddrInfo, 0, len(addrs))
	for _, a := range addrs {
		m, err := ma.NewMultiaddr(a)
		if err != nil {
			return nil, fmt.Errorf("parse multiaddr %q: %w", a, err)
		}
		info, err := peer.AddrInfoFromP2pAddr(m)
		if err != nil {
			return nil, fmt.Errorf("derive addr info %q: %w", a, err)
		}
		out = append(out, *info)
	}
	return out, nil
}

func bootstrapPeers(addrs []string) ([]peer.AddrInfo, error) {
	if len(addrs) == 0 {
		return dhtDefaultBootstrapPeers()
	}
	return parseAddrInfos(addrs)
}

func dhtDefaultBootstrapPeers() ([]peer.AddrInfo, error) {
	out := make([]peer.AddrInfo, 0, len(dht.DefaultBootstrapPeers))
	for _, m := range dht.DefaultBootstrapPeers {
		info, err := peer.AddrInfoFromP2pAddr(m)
		if err != nil {
			continue
		}
		out = append(out, *info)
	}
	return out, nil
}

// Commands returns the channel the caller sends Command values on.
func (n *Node) Commands() chan<- Command { return n.cmdCh }

// Events returns the channel the caller receives Event values from.
func (n *Node) Events() <-chan Event { return n.evtCh }

// Host exposes the underlying libp2p host, mainly for diagnostics.
func (n *Node) Host() host.Host { return n.host }

func (n *Node) emit(evt Event) {
	select {
	case n.evtCh <- evt:
	case <-n.ctx.Done():
	}
}

func (n *Node) emitError(err error) {
	n.logger.Warn("netp2p: error event", zap.Error(err))
	n.emit(Event{Kind: EvtError, Err: err})
}

// connectDiscovered dials a peer discovered via mDNS, DHT providers, or
// identify. GossipSub learns of the new connection through the host's
// own network notifiee, so no separate "add explicit peer" step is
// needed once the dial succeeds.
func (n *Node) connectDiscovered(pi peer.AddrInfo) {
	if pi.ID == n.host.ID() {
		return
	}
	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()
	if err := n.host.Connect(ctx, pi); err != nil {
		n.logger.Debug("netp2p: dial discovered peer failed", zap.String("peer", pi.ID.String()), zap.Error(err))
	}
}

func (n *Node) isConnected(p peer.ID) bool {
	return n.host.Network().Connectedness(p) == network.Connected
}
