package syncengine

import (
	"context"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncproto"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

// startListenerPingLoop starts the listener-side liveness check: every
// listenerPingInterval it pings the host for a fresh RTT sample and
// checks whether the host's heartbeat has gone stale.
func (e *Engine) startListenerPingLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.listenerCancel = cancel
	e.mu.Unlock()

	go e.listenerPingLoop(ctx)
}

func (e *Engine) listenerPingLoop(ctx context.Context) {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			kind := e.room.Kind()
			if kind == roomstate.KindJoining {
				continue
			}
			if kind != roomstate.KindActive {
				return
			}
			if e.room.IsHeartbeatStale(heartbeatStaleAfter) {
				e.endRoomForListener("Host disconnected (timeout)")
				return
			}
			if !e.room.IsHost() {
				ts := e.latencyEst.CreatePing()
				e.publish(syncproto.KindPing, syncproto.PingPayload{TimestampMs: ts})
			}
		}
	}
}

func (e *Engine) handlePing(msg syncproto.Message) {
	var payload syncproto.PingPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	e.publish(syncproto.KindPong, syncproto.PongPayload{
		OriginalTimestampMs: payload.TimestampMs,
		ReceivedAtMs:        time.Now().UnixMilli(),
	})
}

func (e *Engine) handlePong(msg syncproto.Message) {
	var payload syncproto.PongPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	e.latencyEst.HandlePong(peer.ID(msg.From), payload.OriginalTimestampMs)
}

// handleRoomState covers both the join handshake (Joining -> Active, the
// only time a RoomState is accepted from any sender) and a host-pushed
// refresh of an already-Active room (membership or track changes).
func (e *Engine) handleRoomState(msg syncproto.Message) {
	var payload syncproto.RoomStatePayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		e.logger.Debug("syncengine: decode room-state", zap.Error(err))
		return
	}

	switch e.room.Kind() {
	case roomstate.KindJoining:
		e.completeJoin(payload)
	case roomstate.KindActive:
		e.applyRoomState(payload)
	}
}

func (e *Engine) completeJoin(payload syncproto.RoomStatePayload) {
	code, ok := roomcode.Parse(payload.RoomCode, roomcode.Short)
	if !ok {
		if code, ok = roomcode.Parse(payload.RoomCode, roomcode.Long); !ok {
			e.logger.Debug("syncengine: room-state carries unparsable room code")
			return
		}
	}
	displayName := e.room.DisplayName()

	snap := payloadToSnapshot(payload, code, e.localPeerID, displayName)
	if err := e.room.Activate(snap); err != nil {
		e.logger.Debug("syncengine: activate joined room", zap.Error(err))
		return
	}

	e.mu.Lock()
	if e.joinWaitCancel != nil {
		e.joinWaitCancel()
		e.joinWaitCancel = nil
	}
	e.mu.Unlock()

	e.latencyEst.SetHost(peer.ID(payload.HostPeerID))
	e.notifyRoomState()

	go e.syncToHostTrack(payload)
}

// applyRoomState merges a refreshed snapshot into an already-Active
// room, preserving the local peer's own identity fields.
func (e *Engine) applyRoomState(payload syncproto.RoomStatePayload) {
	current, ok := e.room.Snapshot()
	if !ok {
		return
	}
	snap := payloadToSnapshot(payload, current.RoomCode, e.localPeerID, e.room.DisplayName())
	if err := e.room.Activate(snap); err != nil {
		e.logger.Debug("syncengine: apply room-state refresh", zap.Error(err))
		return
	}
	e.notifyRoomState()
}

func payloadToSnapshot(payload syncproto.RoomStatePayload, code roomcode.Code, localPeerID roomstate.PeerID, displayName string) roomstate.Snapshot {
	participants := make(map[roomstate.PeerID]roomstate.Participant, len(payload.Participants)+1)
	for _, p := range payload.Participants {
		participants[roomstate.PeerID(p.PeerID)] = fromWireParticipant(p)
	}
	if _, ok := participants[localPeerID]; !ok {
		participants[localPeerID] = roomstate.Participant{PeerID: localPeerID, DisplayName: displayName}
	}
	return roomstate.Snapshot{
		RoomCode:     code,
		LocalPeerID:  localPeerID,
		HostPeerID:   roomstate.PeerID(payload.HostPeerID),
		Participants: participants,
		CurrentTrack: fromWireTrack(payload.CurrentTrack),
		Playback:     fromWirePlayback(payload.Playback),
	}
}

// syncToHostTrack performs the local player catch-up sequence described
// for a fresh join: load the host's current track, wait for it to report
// loaded, then seek to the host's elapsed position plus calibration
// offset.
func (e *Engine) syncToHostTrack(payload syncproto.RoomStatePayload) {
	if payload.CurrentTrack == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), trackLoadTimeout)
	defer cancel()

	if err := e.player.PlayItem(ctx, "songs", payload.CurrentTrack.SongID); err != nil {
		e.callbacks.Error(err)
		return
	}
	if !e.waitForTrackLoaded(ctx, payload.CurrentTrack.SongID) {
		return
	}

	elapsed := float64(0)
	if payload.Playback.IsPlaying {
		elapsed = float64(nowMs()-payload.Playback.TimestampMs) + e.latencyEst.HostLatencyMs()
	}
	position := float64(payload.Playback.PositionMs) + elapsed
	target := position + e.calib.OffsetMs()

	if err := e.player.Seek(ctx, target/1000.0); err != nil {
		e.callbacks.Error(err)
		return
	}
	e.calib.MarkSeekPerformed()

	if payload.Playback.IsPlaying {
		_ = e.player.Play(ctx)
	} else {
		_ = e.player.Pause(ctx)
	}
}

func (e *Engine) waitForTrackLoaded(ctx context.Context, songID string) bool {
	ticker := time.NewTicker(trackLoadPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			np, err := e.player.NowPlayingInfo(ctx)
			if err == nil && np.SongID == songID {
				return true
			}
		}
	}
}

// handleParticipantJoined and handleParticipantLeft give listeners a
// prompt notification of membership changes without waiting for the
// next full RoomState refresh. The host drives its own callbacks
// directly from handleJoinRequest/handlePeerUnsubscribed, so these are
// no-ops there.
func (e *Engine) handleParticipantJoined(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.ParticipantJoinedPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	p := fromWireParticipant(payload.Participant)
	if err := e.room.UpsertParticipant(p); err == nil {
		e.callbacks.ParticipantJoined(p)
	}
}

func (e *Engine) handleParticipantLeft(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.ParticipantLeftPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	peerID := roomstate.PeerID(payload.PeerID)
	if _, removed, err := e.room.RemoveParticipant(peerID); err == nil && removed {
		e.callbacks.ParticipantLeft(peerID)
	}
}

func (e *Engine) handlePlay(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.PlayPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestGraceTimeout)
	defer cancel()

	if err := e.player.PlayItem(ctx, "songs", payload.Track.SongID); err != nil {
		e.callbacks.Error(err)
		return
	}
	time.Sleep(trackLoadPollInterval)

	target := float64(payload.Playback.PositionMs) + e.calib.OffsetMs()
	if err := e.player.Seek(ctx, target/1000.0); err != nil {
		e.callbacks.Error(err)
		return
	}
	if err := e.player.Play(ctx); err != nil {
		e.callbacks.Error(err)
		return
	}
	e.calib.MarkSeekPerformed()

	track := fromWireTrack(&payload.Track)
	playback := fromWirePlayback(payload.Playback)
	_ = e.room.UpdatePlayback(track, playback)
	e.callbacks.TrackChanged(*track, playback)
}

func (e *Engine) handlePause(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.PausePayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestGraceTimeout)
	defer cancel()

	if err := e.player.Seek(ctx, float64(payload.Playback.PositionMs)/1000.0); err != nil {
		e.callbacks.Error(err)
		return
	}
	if err := e.player.Pause(ctx); err != nil {
		e.callbacks.Error(err)
		return
	}
	playback := fromWirePlayback(payload.Playback)
	_ = e.room.UpdatePlayback(nil, playback)
	e.callbacks.PlaybackChanged(playback)
}

func (e *Engine) handleSeek(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.SeekPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestGraceTimeout)
	defer cancel()

	target := float64(payload.Playback.PositionMs) + e.calib.OffsetMs()
	if err := e.player.Seek(ctx, target/1000.0); err != nil {
		e.callbacks.Error(err)
		return
	}
	e.calib.MarkSeekPerformed()
	playback := fromWirePlayback(payload.Playback)
	_ = e.room.UpdatePlayback(nil, playback)
	e.callbacks.PlaybackChanged(playback)
}

func (e *Engine) handleTrackChange(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.TrackChangePayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), trackLoadTimeout)
	defer cancel()

	start := time.Now()
	if err := e.player.PlayItem(ctx, "songs", payload.Track.SongID); err != nil {
		e.callbacks.Error(err)
		return
	}
	if !e.waitForTrackLoaded(ctx, payload.Track.SongID) {
		return
	}

	elapsed := float64(time.Since(start).Milliseconds())
	target := float64(payload.Playback.PositionMs) + elapsed + e.calib.OffsetMs()
	if err := e.player.Seek(ctx, target/1000.0); err != nil {
		e.callbacks.Error(err)
		return
	}
	e.calib.MarkSeekPerformed()

	track := fromWireTrack(&payload.Track)
	playback := fromWirePlayback(payload.Playback)
	_ = e.room.UpdatePlayback(track, playback)
	e.callbacks.TrackChanged(*track, playback)

	if payload.Playback.IsPlaying {
		_ = e.player.Play(ctx)
	} else {
		_ = e.player.Pause(ctx)
	}
}

// handleHeartbeat runs the listener-side drift-resync algorithm: compare
// the local player's reported position against the position the host's
// timestamped snapshot implies "now", and nudge the local player back in
// line only once the drift crosses the resync threshold.
func (e *Engine) handleHeartbeat(msg syncproto.Message) {
	if e.room.IsHost() {
		return
	}
	var payload syncproto.HeartbeatPayload
	if err := syncproto.Decode(msg, &payload); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestGraceTimeout)
	defer cancel()

	np, err := e.player.NowPlayingInfo(ctx)
	if err != nil {
		e.callbacks.Error(err)
		return
	}
	now := nowMs()
	hostLatency := e.latencyEst.HostLatencyMs()

	expected := float64(payload.Playback.PositionMs)
	if payload.Playback.IsPlaying {
		expected += float64(now-payload.Playback.TimestampMs) + hostLatency
	}
	driftSigned := float64(np.PositionMs) - expected

	previewMs, previewOK := e.calib.PreviewCalibration(driftSigned)

	e.callbacks.SyncStatus(SyncStatus{
		DriftMs:            driftSigned,
		LatencyMs:          hostLatency,
		ElapsedMs:          float64(now - payload.Playback.TimestampMs),
		SeekOffsetMs:       e.calib.OffsetMs(),
		CalibrationPending: e.calib.Awaiting(),
		PreviewMs:          previewMs,
		PreviewOK:          previewOK,
	})

	e.calib.MeasureIfPending(driftSigned)

	if absMs(driftSigned) > driftResyncThreshold {
		target := (expected + e.calib.OffsetMs()) / 1000.0
		if err := e.player.Seek(ctx, target); err != nil {
			e.callbacks.Error(err)
		} else {
			e.calib.MarkSeekPerformed()
		}
	}

	if np.IsPlaying != payload.Playback.IsPlaying {
		if payload.Playback.IsPlaying {
			_ = e.player.Play(ctx)
		} else {
			_ = e.player.Pause(ctx)
		}
	}

	_ = e.room.UpdatePlayback(nil, fromWirePlayback(payload.Playback))
}

func absMs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
