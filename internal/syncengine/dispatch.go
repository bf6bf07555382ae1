package syncengine

import (
	"github.com/giorgiobrullo/cider-sync/internal/netp2p"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncproto"
	"go.uber.org/zap"
)

// dispatchLoop drains the network's event channel. It is the only
// goroutine that reads inbound messages, so handlers never race each
// other (though they may run concurrently with the host-broadcast or
// listener-ping loops, which only ever write).
func (e *Engine) dispatchLoop() {
	for evt := range e.net.Events() {
		switch evt.Kind {
		case netp2p.EvtMessage:
			e.handleInbound(evt)
		case netp2p.EvtPeerSubscribed:
			e.handlePeerSubscribed(peerIDFrom(evt.FromPeer))
		case netp2p.EvtPeerUnsubscribed:
			e.handlePeerUnsubscribed(peerIDFrom(evt.FromPeer))
		case netp2p.EvtReady:
			e.logger.Info("syncengine: network ready")
		case netp2p.EvtListeningAddresses:
			e.logger.Debug("syncengine: listening addresses", zap.Strings("addrs", evt.ListenAddrs))
		case netp2p.EvtBootstrapStatus:
			e.logger.Info("syncengine: dht bootstrap", zap.Int("peers", evt.BootstrapPeers), zap.Bool("ok", evt.BootstrapOK))
		case netp2p.EvtError:
			e.callbacks.Error(evt.Err)
		}
	}
}

func (e *Engine) handleInbound(evt netp2p.Event) {
	msg, err := syncproto.Unmarshal(evt.Message)
	if err != nil {
		e.logger.Debug("syncengine: malformed message", zap.Error(err))
		return
	}
	msg.From = evt.FromPeer.String()

	if !e.authorize(msg) {
		e.logger.Debug("syncengine: dropped unauthorized message",
			zap.String("kind", string(msg.Kind)), zap.String("from", msg.From))
		return
	}

	switch msg.Kind {
	case syncproto.KindRoomState:
		e.handleRoomState(msg)
	case syncproto.KindJoinRequest:
		e.handleJoinRequest(msg)
	case syncproto.KindParticipantJoined:
		e.handleParticipantJoined(msg)
	case syncproto.KindParticipantLeft:
		e.handleParticipantLeft(msg)
	case syncproto.KindPlay:
		e.handlePlay(msg)
	case syncproto.KindPause:
		e.handlePause(msg)
	case syncproto.KindSeek:
		e.handleSeek(msg)
	case syncproto.KindTrackChange:
		e.handleTrackChange(msg)
	case syncproto.KindHeartbeat:
		e.handleHeartbeat(msg)
	case syncproto.KindPing:
		e.handlePing(msg)
	case syncproto.KindPong:
		e.handlePong(msg)
	case syncproto.KindTransferHost:
		e.handleTransferHost(msg)
	}
}

// authorize applies the host-only rule, with the Joining-room exception:
// a RoomState is accepted from anyone while still Joining, since the
// host_peer_id isn't known locally until that very message arrives.
func (e *Engine) authorize(msg syncproto.Message) bool {
	if e.room.Kind() == roomstate.KindJoining && msg.Kind == syncproto.KindRoomState {
		return true
	}
	host, ok := e.hostPeerID()
	if !ok {
		return !syncproto.IsHostOnly(msg.Kind)
	}
	return syncproto.Authorize(msg.Kind, msg.From, string(host))
}
