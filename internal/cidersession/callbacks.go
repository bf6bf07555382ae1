package cidersession

import (
	"github.com/giorgiobrullo/cider-sync/internal/cidererr"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncengine"
)

// engineCallbacks adapts the engine's Callbacks interface to the
// session's richer FFI-facing one.
type engineCallbacks Session

var _ syncengine.Callbacks = (*engineCallbacks)(nil)

func (e *engineCallbacks) session() *Session { return (*Session)(e) }

func (e *engineCallbacks) ParticipantJoined(p roomstate.Participant) {
	e.session().callbacks().OnParticipantJoined(participantFromRoomstate(p))
}

func (e *engineCallbacks) ParticipantLeft(peerID roomstate.PeerID) {
	e.session().callbacks().OnParticipantLeft(string(peerID))
}

func (e *engineCallbacks) RoomStateChanged(snap roomstate.Snapshot) {
	e.session().callbacks().OnRoomStateChanged(roomStateFromSnapshot(snap))
}

func (e *engineCallbacks) TrackChanged(track roomstate.TrackInfo, playback roomstate.PlaybackInfo) {
	s := e.session()
	s.callbacks().OnTrackChanged(*trackFromRoomstate(&track))
	s.callbacks().OnPlaybackChanged(playbackFromRoomstate(playback))
}

func (e *engineCallbacks) PlaybackChanged(playback roomstate.PlaybackInfo) {
	e.session().callbacks().OnPlaybackChanged(playbackFromRoomstate(playback))
}

func (e *engineCallbacks) RoomEnded(reason string) {
	e.session().callbacks().OnRoomEnded(reason)
}

func (e *engineCallbacks) SyncStatus(status syncengine.SyncStatus) {
	e.session().callbacks().OnSyncStatus(SyncStatus{
		DriftMs:            status.DriftMs,
		LatencyMs:          status.LatencyMs,
		ElapsedMs:          status.ElapsedMs,
		SeekOffsetMs:       status.SeekOffsetMs,
		CalibrationPending: status.CalibrationPending,
		PreviewMs:          status.PreviewMs,
		PreviewOK:          status.PreviewOK,
	})
}

func (e *engineCallbacks) Error(err error) {
	kind := string(cidererr.KindInternal)
	if ce, ok := err.(*cidererr.Error); ok {
		kind = string(ce.Kind)
	}
	e.session().callbacks().OnError(kind, err.Error())
}
