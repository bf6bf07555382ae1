package syncengine

import (
	"context"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncproto"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

const requestGraceTimeout = 3 * time.Second

// startHostBroadcastLoop starts the periodic poll-and-publish loop that
// keeps every listener converged on this process's playback. Only the
// host runs this loop.
func (e *Engine) startHostBroadcastLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.hostCancel = cancel
	e.mu.Unlock()

	go e.hostBroadcastLoop(ctx)
}

func (e *Engine) hostBroadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(hostBroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.room.Kind() != roomstate.KindActive || !e.room.IsHost() {
				return
			}
			e.broadcastPlaybackOnce(ctx)
		}
	}
}

func (e *Engine) broadcastPlaybackOnce(ctx context.Context) {
	np, err := e.player.NowPlayingInfo(ctx)
	if err != nil {
		e.logger.Debug("syncengine: host poll failed", zap.Error(err))
		return
	}
	playing, err := e.player.IsPlaying(ctx)
	if err != nil {
		playing = np.IsPlaying
	}

	track := &roomstate.TrackInfo{
		SongID: np.SongID, Name: np.Name, Artist: np.Artist, Album: np.Album,
		ArtworkURL: np.ArtworkURL, DurationMs: np.DurationMs,
	}
	playback := roomstate.PlaybackInfo{IsPlaying: playing, PositionMs: np.PositionMs, TimestampMs: nowMs()}

	if err := e.room.UpdatePlayback(track, playback); err != nil {
		e.logger.Debug("syncengine: update local playback", zap.Error(err))
		return
	}

	e.mu.Lock()
	changed := np.SongID != e.lastBroadcastSongID
	if changed {
		e.lastBroadcastSongID = np.SongID
	}
	e.mu.Unlock()

	if changed {
		e.callbacks.TrackChanged(*track, playback)
		e.publish(syncproto.KindTrackChange, syncproto.TrackChangePayload{
			Track:    *toWireTrack(track),
			Playback: toWirePlayback(playback),
		})
		return
	}
	e.callbacks.PlaybackChanged(playback)
	e.publish(syncproto.KindHeartbeat, syncproto.HeartbeatPayload{TrackID: np.SongID, Playback: toWirePlayback(playback)})
}

// handlePeerSubscribed is the host-side reaction to a newly-subscribed
// peer: it is added eagerly with a placeholder display name so a
// RoomState broadcast reaches it immediately, without waiting for its
// JoinRequest. handleJoinRequest fills in the real name once it arrives.
func (e *Engine) handlePeerSubscribed(peerID roomstate.PeerID) {
	if e.room.Kind() != roomstate.KindActive || !e.room.IsHost() {
		return
	}
	if peerID == e.localPeerID {
		return
	}
	snap, ok := e.room.Snapshot()
	if !ok {
		return
	}
	if _, exists := snap.Participants[peerID]; exists {
		return
	}
	if err := e.room.UpsertParticipant(roomstate.Participant{PeerID: peerID, DisplayName: "?"}); err != nil {
		e.logger.Debug("syncengine: add subscribed peer", zap.Error(err))
		return
	}
	e.broadcastRoomState()
}

// handlePeerUnsubscribed removes a departed peer. If the local process is
// not the host and the departing peer was the host, the room has ended.
func (e *Engine) handlePeerUnsubscribed(peerID roomstate.PeerID) {
	if e.room.Kind() != roomstate.KindActive {
		return
	}
	host, _ := e.room.HostPeerID()
	wasHost := peerID == host

	if _, removed, err := e.room.RemoveParticipant(peerID); err != nil || !removed {
		return
	}

	if wasHost && !e.room.IsHost() {
		e.endRoomForListener("Host left the room")
		return
	}
	e.callbacks.ParticipantLeft(peerID)
	if e.room.IsHost() {
		e.publish(syncproto.KindParticipantLeft, syncproto.ParticipantLeftPayload{PeerID: string(peerID)})
		e.broadcastRoomState()
	}
}

func (e *Engine) handleJoinRequest(msg syncproto.Message) {
	if e.room.Kind() != roomstate.KindActive || !e.room.IsHost() {
		return
	}
	var payload syncproto.JoinRequestPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		e.logger.Debug("syncengine: decode join-request", zap.Error(err))
		return
	}

	fromPeer := roomstate.PeerID(msg.From)
	snap, ok := e.room.Snapshot()
	if !ok {
		return
	}
	_, alreadyKnown := snap.Participants[fromPeer]

	if err := e.room.UpsertParticipant(roomstate.Participant{PeerID: fromPeer, DisplayName: payload.DisplayName}); err != nil {
		e.logger.Debug("syncengine: upsert joining peer", zap.Error(err))
		return
	}

	if !alreadyKnown {
		e.callbacks.ParticipantJoined(roomstate.Participant{PeerID: fromPeer, DisplayName: payload.DisplayName})
	}
	e.broadcastRoomState()
}

func (e *Engine) handleTransferHost(msg syncproto.Message) {
	var payload syncproto.TransferHostPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	if err := e.room.TransferHost(roomstate.PeerID(payload.NewHostPeerID)); err != nil {
		e.logger.Debug("syncengine: transfer-host", zap.Error(err))
		return
	}
	if host, ok := e.room.HostPeerID(); ok {
		e.latencyEst.SetHost(peer.ID(host))
	}
	e.notifyRoomState()
	if e.room.IsHost() {
		e.startHostBroadcastLoop()
	}
}

func (e *Engine) broadcastRoomState() {
	snap, ok := e.room.Snapshot()
	if !ok {
		return
	}
	e.callbacks.RoomStateChanged(snap)
	e.publish(syncproto.KindRoomState, snapshotToPayload(snap))
}

func (e *Engine) endRoomForListener(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestGraceTimeout)
	defer cancel()
	if playing, err := e.player.IsPlaying(ctx); err == nil && playing {
		_ = e.player.Pause(ctx)
	}
	e.callbacks.RoomEnded(reason)
	_ = e.LeaveRoom()
}

func snapshotToPayload(snap roomstate.Snapshot) syncproto.RoomStatePayload {
	participants := make([]syncproto.ParticipantWire, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, toWireParticipant(p))
	}
	payload := syncproto.RoomStatePayload{
		RoomCode:     snap.RoomCode.String(),
		HostPeerID:   string(snap.HostPeerID),
		Participants: participants,
		Playback:     toWirePlayback(snap.Playback),
	}
	if snap.CurrentTrack != nil {
		payload.CurrentTrack = toWireTrack(snap.CurrentTrack)
	}
	return payload
}
