package relay

import (
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// protocolVersion is advertised over identify by the relay itself. It
// carries "cider" too so Cider clients recognize a genuine Cider relay,
// distinct from the session protocol version in internal/netp2p.
const protocolVersion = "cider-relay/1.0.0"

// ciderSubstring is what an incoming peer's advertised protocol version
// must contain (case-insensitively) to be admitted.
const ciderSubstring = "cider"

// identifyTimeout is how long a connected peer has to identify as a
// Cider client before the periodic sweep disconnects it.
const identifyTimeout = 30 * time.Second

// idleConnTimeout keeps relay reservations alive across quiet periods,
// matching the session node's own idle retention.
const idleConnTimeout = 300 * time.Second

// sweepInterval is how often the pending-peer timeout sweep runs.
const sweepInterval = 5 * time.Second

// Config controls how a Server assembles its libp2p host.
type Config struct {
	// TCPPort and QUICPort are the relay's listen ports, used as given.
	// Config has no defaults of its own; config.LoadRelayConfig fills
	// both from TCP_PORT/QUIC_PORT, defaulting to 4001.
	TCPPort  int
	QUICPort int

	// Identity is the relay's persisted keypair (see LoadOrCreateIdentity).
	Identity crypto.PrivKey
}
