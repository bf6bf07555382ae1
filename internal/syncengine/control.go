package syncengine

import (
	"context"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/cidererr"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncproto"
)

const controlRequestTimeout = 3 * time.Second

// requireHost guards the host-only control operations: only the current
// host may originate Play/Pause/Seek/TrackChange/Heartbeat (§4.5).
func (e *Engine) requireHost() error {
	if e.room.Kind() != roomstate.KindActive {
		return cidererr.New(cidererr.KindNotInRoom, "not in a room")
	}
	if !e.room.IsHost() {
		return cidererr.New(cidererr.KindNotHost, "only the host can control playback")
	}
	return nil
}

func (e *Engine) currentPlaybackWire(ctx context.Context) (syncproto.PlaybackWire, error) {
	np, err := e.player.NowPlayingInfo(ctx)
	if err != nil {
		return syncproto.PlaybackWire{}, err
	}
	playing, err := e.player.IsPlaying(ctx)
	if err != nil {
		playing = np.IsPlaying
	}
	playback := roomstate.PlaybackInfo{IsPlaying: playing, PositionMs: np.PositionMs, TimestampMs: nowMs()}
	_ = e.room.UpdatePlayback(nil, playback)
	return toWirePlayback(playback), nil
}

// currentTrackAndPlaybackWire mirrors currentPlaybackWire but also
// reports what's loaded, for messages (Play) that must tell a listener
// which track to load before seeking.
func (e *Engine) currentTrackAndPlaybackWire(ctx context.Context) (syncproto.TrackWire, syncproto.PlaybackWire, error) {
	np, err := e.player.NowPlayingInfo(ctx)
	if err != nil {
		return syncproto.TrackWire{}, syncproto.PlaybackWire{}, err
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
	_ = e.room.UpdatePlayback(track, playback)
	return *toWireTrack(track), toWirePlayback(playback), nil
}

// SyncPlay resumes the local player and broadcasts Play to the room.
// Host-only.
func (e *Engine) SyncPlay() error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	if err := e.player.Play(ctx); err != nil {
		return err
	}
	track, playback, err := e.currentTrackAndPlaybackWire(ctx)
	if err != nil {
		return err
	}
	e.publish(syncproto.KindPlay, syncproto.PlayPayload{Track: track, Playback: playback})
	return nil
}

// SyncPause pauses the local player and broadcasts Pause to the room.
// Host-only.
func (e *Engine) SyncPause() error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	if err := e.player.Pause(ctx); err != nil {
		return err
	}
	playback, err := e.currentPlaybackWire(ctx)
	if err != nil {
		return err
	}
	e.publish(syncproto.KindPause, syncproto.PausePayload{Playback: playback})
	return nil
}

// SyncSeek seeks the local player and broadcasts Seek to the room.
// Host-only.
func (e *Engine) SyncSeek(positionMs uint64) error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	if err := e.player.Seek(ctx, float64(positionMs)/1000.0); err != nil {
		return err
	}
	playback, err := e.currentPlaybackWire(ctx)
	if err != nil {
		return err
	}
	e.publish(syncproto.KindSeek, syncproto.SeekPayload{Playback: playback})
	return nil
}

// SyncNext advances the local player to the next track, then publishes a
// TrackChange for whatever the player reports as now playing and records
// its song id, so broadcastPlaybackOnce does not announce it again.
func (e *Engine) SyncNext() error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	if err := e.player.Next(ctx); err != nil {
		return err
	}
	e.broadcastTrackChangeLocked(ctx)
	return nil
}

// SyncPrevious returns the local player to the previous track, with the
// same broadcast behavior as SyncNext.
func (e *Engine) SyncPrevious() error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	if err := e.player.Previous(ctx); err != nil {
		return err
	}
	e.broadcastTrackChangeLocked(ctx)
	return nil
}

func (e *Engine) broadcastTrackChangeLocked(ctx context.Context) {
	np, err := e.player.NowPlayingInfo(ctx)
	if err != nil {
		e.logger.Debug("syncengine: poll now-playing after track change failed")
		return
	}
	track := &roomstate.TrackInfo{
		SongID: np.SongID, Name: np.Name, Artist: np.Artist, Album: np.Album,
		ArtworkURL: np.ArtworkURL, DurationMs: np.DurationMs,
	}
	playback := roomstate.PlaybackInfo{IsPlaying: np.IsPlaying, PositionMs: np.PositionMs, TimestampMs: nowMs()}
	_ = e.room.UpdatePlayback(track, playback)

	e.mu.Lock()
	e.lastBroadcastSongID = np.SongID
	e.mu.Unlock()

	e.publish(syncproto.KindTrackChange, syncproto.TrackChangePayload{
		Track:    *toWireTrack(track),
		Playback: toWirePlayback(playback),
	})
}

// BroadcastPlayback force-publishes the current playback state without
// waiting for the host broadcast loop's next tick. Host-only.
func (e *Engine) BroadcastPlayback() error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	e.broadcastPlaybackOnce(ctx)
	return nil
}

// BroadcastTrackChange force-publishes a TrackChange for the player's
// current track. Host-only.
func (e *Engine) BroadcastTrackChange() error {
	if err := e.requireHost(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), controlRequestTimeout)
	defer cancel()
	e.broadcastTrackChangeLocked(ctx)
	return nil
}

// TransferHostTo reassigns host_peer_id to newHostPeerID. Host-only; the
// new host's own Engine picks up KindTransferHost and starts its
// broadcast loop when it observes itself as the new host.
func (e *Engine) TransferHostTo(newHostPeerID roomstate.PeerID) error {
	if err := e.requireHost(); err != nil {
		return err
	}
	if err := e.room.TransferHost(newHostPeerID); err != nil {
		return cidererr.Wrap(cidererr.KindInternal, "transfer host", err)
	}
	e.publish(syncproto.KindTransferHost, syncproto.TransferHostPayload{NewHostPeerID: string(newHostPeerID)})
	e.stopHostLoopOnly()
	return nil
}

func (e *Engine) stopHostLoopOnly() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hostCancel != nil {
		e.hostCancel()
		e.hostCancel = nil
	}
}

// IsHost reports whether this process is the current room's host.
func (e *Engine) IsHost() bool { return e.room.IsHost() }

// IsInRoom reports whether this process is part of an active room.
func (e *Engine) IsInRoom() bool { return e.room.Kind() == roomstate.KindActive }

// LocalPeerID returns this process's libp2p peer id.
func (e *Engine) LocalPeerID() roomstate.PeerID { return e.localPeerID }
