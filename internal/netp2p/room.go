package netp2p

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

func (n *Node) run(bootstrap []peer.AddrInfo) {
	n.bootstrapDHT(bootstrap)
	n.emit(Event{Kind: EvtReady})
	n.emit(Event{Kind: EvtListeningAddresses, ListenAddrs: addrStrings(n.host.Addrs())})

	go n.identifyLoop()
	go n.livenessLoop()

	for {
		select {
		case <-n.ctx.Done():
			n.teardown()
			return
		case cmd := <-n.cmdCh:
			n.handleCommand(cmd)
		}
	}
}

func (n *Node) handleCommand(cmd Command) {
	var err error
	switch cmd.Kind {
	case CmdCreateRoom:
		err = n.createRoom(cmd.RoomCode)
	case CmdJoinRoom:
		err = n.joinRoom(cmd.RoomCode)
	case CmdLeaveRoom:
		err = n.leaveRoom()
	case CmdBroadcast:
		err = n.broadcast(cmd.Payload)
	case CmdDialPeer:
		ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
		err = n.host.Connect(ctx, cmd.Addr)
		cancel()
	case CmdShutdown:
		n.cancel()
	}
	if err != nil {
		n.emitError(err)
	}
	if cmd.Reply != nil {
		cmd.Reply <- err
	}
}

// createRoom subscribes to the room topic and starts providing the
// rendezvous key, per the host side of the room lifecycle.
func (n *Node) createRoom(code string) error {
	if err := n.joinTopic(code); err != nil {
		return err
	}
	provideCtx, cancel := context.WithCancel(n.ctx)
	n.provideCancel = cancel
	go n.provideLoop(provideCtx, roomProviderKey(code))
	return nil
}

// joinRoom subscribes and additionally queries the DHT once for
// existing providers to dial, per the listener side of the lifecycle.
func (n *Node) joinRoom(code string) error {
	if err := n.joinTopic(code); err != nil {
		return err
	}
	provideCtx, cancel := context.WithCancel(n.ctx)
	n.provideCancel = cancel
	go n.provideLoop(provideCtx, roomProviderKey(code))
	go n.findProvidersOnce(provideCtx, roomProviderKey(code))
	return nil
}

func (n *Node) joinTopic(code string) error {
	if n.topic != nil {
		return fmt.Errorf("netp2p: already in a room")
	}
	topic, err := n.ps.Join(roomTopicName(code))
	if err != nil {
		return fmt.Errorf("netp2p: join topic: %w", err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		_ = topic.Close()
		return fmt.Errorf("netp2p: subscribe topic: %w", err)
	}

	n.topic = topic
	n.sub = sub
	n.roomCode = code

	go n.readLoop(sub)
	go n.peerEventLoop(topic)

	return nil
}

// leaveRoom unsubscribes and stops providing the rendezvous key.
func (n *Node) leaveRoom() error {
	if n.topic == nil {
		return nil
	}
	if n.provideCancel != nil {
		n.provideCancel()
		n.provideCancel = nil
	}
	if cid, err := providerCID(roomProviderKey(n.roomCode)); err == nil {
		pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = n.dht.Provide(pctx, cid, false)
		cancel()
	}

	n.sub.Cancel()
	if err := n.topic.Close(); err != nil {
		n.logger.Debug("netp2p: topic close", zap.Error(err))
	}
	n.topic = nil
	n.sub = nil
	n.roomCode = ""
	return nil
}

// broadcast publishes a serialized sync message to the current topic.
func (n *Node) broadcast(payload []byte) error {
	if n.topic == nil {
		return fmt.Errorf("netp2p: no room joined")
	}
	return n.topic.Publish(n.ctx, payload)
}

func (n *Node) readLoop(sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(n.ctx)
		if err != nil {
			return // context cancelled, or subscription torn down by LeaveRoom
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}
		n.emit(Event{Kind: EvtMessage, Message: msg.Data, FromPeer: msg.GetFrom()})
	}
}

func (n *Node) peerEventLoop(topic *pubsub.Topic) {
	handler, err := topic.EventHandler()
	if err != nil {
		n.emitError(fmt.Errorf("netp2p: topic event handler: %w", err))
		return
	}
	defer handler.Cancel()
	for {
		pe, err := handler.NextPeerEvent(n.ctx)
		if err != nil {
			return
		}
		switch pe.Type {
		case pubsub.PeerJoin:
			n.emit(Event{Kind: EvtPeerSubscribed, FromPeer: pe.Peer})
		case pubsub.PeerLeave:
			n.emit(Event{Kind: EvtPeerUnsubscribed, FromPeer: pe.Peer})
		}
	}
}

// identifyLoop watches identify completion events and, per the
// discovery-to-mesh rule, requests a relay reservation through any peer
// that advertises relay support and a non-loopback listen address.
func (n *Node) identifyLoop() {
	sub, err := n.host.EventBus().Subscribe(new(event.EvtPeerIdentificationCompleted))
	if err != nil {
		n.logger.Warn("netp2p: subscribe identify events failed", zap.Error(err))
		return
	}
	defer sub.Close()

	for {
		select {
		case <-n.ctx.Done():
			return
		case raw, ok := <-sub.Out():
			if !ok {
				return
			}
			evt := raw.(event.EvtPeerIdentificationCompleted)
			n.maybeReserveRelay(evt)
		}
	}
}

const relayHopProtocol = protocol.ID("/libp2p/circuit/relay/0.2.0/hop")

func (n *Node) maybeReserveRelay(evt event.EvtPeerIdentificationCompleted) {
	if !supportsRelay(evt.Protocols) {
		return
	}
	for _, addr := range evt.ListenAddrs {
		if isLoopback(addr) {
			continue
		}
		circuit, err := ma.NewMultiaddr(addr.String() + "/p2p/" + evt.Peer.String() + "/p2p-circuit")
		if err != nil {
			continue
		}
		if err := n.host.Network().Listen(circuit); err != nil {
			n.logger.Debug("netp2p: relay reservation failed", zap.String("via", evt.Peer.String()), zap.Error(err))
			continue
		}
		n.logger.Info("netp2p: relay reservation obtained", zap.String("via", evt.Peer.String()))
		n.emit(Event{Kind: EvtListeningAddresses, ListenAddrs: addrStrings(n.host.Addrs())})
		return
	}
}

func supportsRelay(protocols []protocol.ID) bool {
	for _, p := range protocols {
		if p == relayHopProtocol {
			return true
		}
	}
	return false
}

// livenessLoop pings all currently connected peers on a fixed interval,
// purely to keep NAT/relay bindings warm; results are not surfaced as
// events.
func (n *Node) livenessLoop() {
	ticker := time.NewTicker(livenessPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			for _, p := range n.host.Network().Peers() {
				go n.pingOnce(p)
			}
		}
	}
}

func (n *Node) pingOnce(p peer.ID) {
	ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
	defer cancel()
	res := <-n.pingSvc.Ping(ctx, p)
	if res.Error != nil {
		n.logger.Debug("netp2p: liveness ping failed", zap.String("peer", p.String()), zap.Error(res.Error))
	}
}

func (n *Node) bootstrapDHT(bootstrap []peer.AddrInfo) {
	var connected int32
	var wg sync.WaitGroup
	for _, pi := range bootstrap {
		wg.Add(1)
		go func(pi peer.AddrInfo) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(n.ctx, 20*time.Second)
			defer cancel()
			if err := n.host.Connect(ctx, pi); err == nil {
				atomic.AddInt32(&connected, 1)
			}
		}(pi)
	}
	wg.Wait()

	if err := n.dht.Bootstrap(n.ctx); err != nil {
		n.logger.Warn("netp2p: dht bootstrap failed", zap.Error(err))
	}

	n.emit(Event{Kind: EvtBootstrapStatus, BootstrapPeers: int(connected), BootstrapOK: connected > 0})
}

func (n *Node) teardown() {
	if n.provideCancel != nil {
		n.provideCancel()
	}
	if n.topic != nil {
		if n.sub != nil {
			n.sub.Cancel()
		}
		_ = n.topic.Close()
	}
	if n.mdns != nil {
		_ = n.mdns.Close()
	}
	n.identify.Close()
	if err := n.dht.Close(); err != nil {
		n.logger.Debug("netp2p: dht close", zap.Error(err))
	}
	if err := n.host.Close(); err != nil {
		n.logger.Debug("netp2p: host close", zap.Error(err))
	}
	close(n.evtCh)
}

func addrStrings(addrs []ma.Multiaddr) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func isLoopback(addr ma.Multiaddr) bool {
	for _, p := range addr.Protocols() {
		if p.Code == ma.P_IP4 || p.Code == ma.P_IP6 {
			v, err := addr.ValueForProtocol(p.Code)
			if err == nil && (v == "127.0.0.1" || v == "::1") {
				return true
			}
		}
	}
	return false
}
