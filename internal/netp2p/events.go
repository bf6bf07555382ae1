package netp2p

import "github.com/libp2p/go-libp2p/core/peer"

// CommandKind selects the operation a Command asks the event loop to
// perform. The loop is the sole mutator of swarm/pubsub state, so every
// state change enters through this channel.
type CommandKind int

const (
	CmdCreateRoom CommandKind = iota
	CmdJoinRoom
	CmdLeaveRoom
	CmdBroadcast
	CmdDialPeer
	CmdShutdown
)

// Command is a request sent to the event loop via Node.Commands().
type Command struct {
	Kind     CommandKind
	RoomCode string        // CreateRoom, JoinRoom
	Payload  []byte        // Broadcast
	Addr     peer.AddrInfo // DialPeer
	Reply    chan error    // optional; closed or sent-to once the command is handled
}

// EventKind selects which field(s) of an Event are populated.
type EventKind int

const (
	EvtReady EventKind = iota
	EvtMessage
	EvtPeerSubscribed
	EvtPeerUnsubscribed
	EvtListeningAddresses
	EvtBootstrapStatus
	EvtError
)

// Event is something the event loop observed, delivered via Node.Events().
type Event struct {
	Kind EventKind

	Message  []byte  // EvtMessage
	FromPeer peer.ID // EvtMessage, EvtPeerSubscribed, EvtPeerUnsubscribed

	ListenAddrs []string // EvtListeningAddresses

	BootstrapPeers int  // EvtBootstrapStatus
	BootstrapOK    bool // EvtBootstrapStatus

	Err error // EvtError
}
