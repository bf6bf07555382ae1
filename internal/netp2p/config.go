package netp2p

import "github.com/libp2p/go-libp2p/core/crypto"

// ProtocolVersion is advertised over identify so relays and peers can
// recognize Cider nodes; it must contain the substring "cider".
const ProtocolVersion = "cider/1.0.0"

const roomTopicPrefix = "cider-room-"
const dhtKeyPrefix = "cider-room-"

// Config controls how a Node assembles its libp2p host.
type Config struct {
	// ListenPort is used for both the TCP and QUIC listeners. Zero
	// selects libp2p's default ephemeral listen addresses.
	ListenPort int

	// Identity is the node's keypair. If nil, a fresh Ed25519 key is
	// generated: ordinary nodes don't need a stable PeerId across
	// restarts (only the relay does).
	Identity crypto.PrivKey

	// BootstrapPeers are multiaddr strings for the DHT's initial
	// routing table seed. Empty uses the well-known public IPFS
	// bootstrap peers.
	BootstrapPeers []string

	// RelayAddrs are multiaddr strings of static relays to use for
	// libp2p.EnableAutoRelayWithStaticRelays. Empty skips static
	// AutoRelay only: the relay transport stays enabled, and the node
	// still reserves a circuit through any relay-capable peer it
	// identifies (see maybeReserveRelay).
	RelayAddrs []string

	// UserAgent is advertised over identify alongside ProtocolVersion.
	UserAgent string
}

func roomTopicName(code string) string {
	return roomTopicPrefix + code
}

func roomProviderKey(code string) string {
	return dhtKeyPrefix + code
}
