package netp2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

// mdnsNotifee dials every peer discovered on the local network, per the
// discovery-to-mesh rule: any discovery event gets connected immediately.
type mdnsNotifee struct {
	node *Node
}

func (m *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	m.node.connectDiscovered(pi)
}

// provideLoop periodically re-announces this node as a DHT provider for
// the room key, so records don't expire out from under a long session.
const provideReuseInterval = 6 * time.Hour

func (n *Node) provideLoop(ctx context.Context, key string) {
	cid, err := providerCID(key)
	if err != nil {
		n.emitError(err)
		return
	}

	announce := func() {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := n.dht.Provide(pctx, cid, true); err != nil {
			n.logger.Debug("netp2p: provide failed", zap.Error(err))
		}
	}

	announce()
	ticker := time.NewTicker(provideReuseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			announce()
		}
	}
}

// findProvidersOnce queries the DHT once for providers of the room key
// and dials each one found.
func (n *Node) findProvidersOnce(ctx context.Context, key string) {
	cid, err := providerCID(key)
	if err != nil {
		n.emitError(err)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	for pi := range n.dht.FindProvidersAsync(pctx, cid, 20) {
		n.connectDiscovered(pi)
	}
}
