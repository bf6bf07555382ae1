// Package cidersession is the embeddable-session façade: a single
// Session type that wires netp2p, syncengine, roomstate and
// playerclient together behind the flat operation set and callback
// interface an FFI boundary (or any single-process caller) consumes.
// Grounded on the struct-plus-manager split and FromStateData-style
// conversion pattern the wider corpus uses for an SDK-facing layer
// over an internal engine.
package cidersession

import (
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
)

// Track mirrors the currently loaded track for FFI consumers.
type Track struct {
	SongID     string
	Name       string
	Artist     string
	Album      string
	ArtworkURL string
	DurationMs uint64
}

// Playback mirrors the current playback position for FFI consumers.
type Playback struct {
	IsPlaying   bool
	PositionMs  uint64
	TimestampMs int64
}

// Participant mirrors a room member for FFI consumers.
type Participant struct {
	PeerID      string
	DisplayName string
	IsHost      bool
}

// RoomState is the full snapshot returned by GetRoomState and delivered
// to OnRoomStateChanged.
type RoomState struct {
	RoomCode     string
	HostPeerID   string
	LocalPeerID  string
	Participants []Participant
	CurrentTrack *Track
	Playback     Playback
}

func trackFromRoomstate(t *roomstate.TrackInfo) *Track {
	if t == nil {
		return nil
	}
	return &Track{
		SongID: t.SongID, Name: t.Name, Artist: t.Artist, Album: t.Album,
		ArtworkURL: t.ArtworkURL, DurationMs: t.DurationMs,
	}
}

func playbackFromRoomstate(p roomstate.PlaybackInfo) Playback {
	return Playback{IsPlaying: p.IsPlaying, PositionMs: p.PositionMs, TimestampMs: p.TimestampMs}
}

func participantFromRoomstate(p roomstate.Participant) Participant {
	return Participant{PeerID: string(p.PeerID), DisplayName: p.DisplayName, IsHost: p.IsHost}
}

func roomStateFromSnapshot(snap roomstate.Snapshot) RoomState {
	participants := make([]Participant, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		participants = append(participants, participantFromRoomstate(p))
	}
	return RoomState{
		RoomCode:     snap.RoomCode.String(),
		HostPeerID:   string(snap.HostPeerID),
		LocalPeerID:  string(snap.LocalPeerID),
		Participants: participants,
		CurrentTrack: trackFromRoomstate(snap.CurrentTrack),
		Playback:     playbackFromRoomstate(snap.Playback),
	}
}

// SyncStatus mirrors syncengine.SyncStatus for FFI consumers, carrying
// the listener-side drift/calibration diagnostics emitted on every
// handled Heartbeat.
type SyncStatus struct {
	DriftMs            float64
	LatencyMs          float64
	ElapsedMs          float64
	SeekOffsetMs       float64
	CalibrationPending bool
	PreviewMs          float64
	PreviewOK          bool
}

// Callbacks is the notification surface an FFI binding implements to
// receive session events. Every method is called from a Session-owned
// goroutine and must not block.
type Callbacks interface {
	OnRoomStateChanged(state RoomState)
	OnTrackChanged(track Track)
	OnPlaybackChanged(playback Playback)
	OnParticipantJoined(p Participant)
	OnParticipantLeft(peerID string)
	OnRoomEnded(reason string)
	OnError(kind string, message string)
	OnConnected()
	OnDisconnected()
	OnSyncStatus(status SyncStatus)
}

// NopCallbacks is a zero-value Callbacks that discards every event; a
// caller that hasn't installed real callbacks yet still has a safe
// target to dispatch to.
type NopCallbacks struct{}

func (NopCallbacks) OnRoomStateChanged(RoomState)     {}
func (NopCallbacks) OnTrackChanged(Track)             {}
func (NopCallbacks) OnPlaybackChanged(Playback)       {}
func (NopCallbacks) OnParticipantJoined(Participant)  {}
func (NopCallbacks) OnParticipantLeft(string)         {}
func (NopCallbacks) OnRoomEnded(string)                {}
func (NopCallbacks) OnError(string, string)            {}
func (NopCallbacks) OnConnected()                      {}
func (NopCallbacks) OnDisconnected()                   {}
func (NopCallbacks) OnSyncStatus(SyncStatus)           {}
