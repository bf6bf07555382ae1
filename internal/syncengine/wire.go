package syncengine

import (
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncproto"
)

func toWireParticipant(p roomstate.Participant) syncproto.ParticipantWire {
	return syncproto.ParticipantWire{PeerID: string(p.PeerID), DisplayName: p.DisplayName, IsHost: p.IsHost}
}

func fromWireParticipant(w syncproto.ParticipantWire) roomstate.Participant {
	return roomstate.Participant{PeerID: roomstate.PeerID(w.PeerID), DisplayName: w.DisplayName, IsHost: w.IsHost}
}

func toWireTrack(t *roomstate.TrackInfo) *syncproto.TrackWire {
	if t == nil {
		return nil
	}
	return &syncproto.TrackWire{
		SongID: t.SongID, Name: t.Name, Artist: t.Artist, Album: t.Album,
		ArtworkURL: t.ArtworkURL, DurationMs: t.DurationMs,
	}
}

func fromWireTrack(w *syncproto.TrackWire) *roomstate.TrackInfo {
	if w == nil {
		return nil
	}
	return &roomstate.TrackInfo{
		SongID: w.SongID, Name: w.Name, Artist: w.Artist, Album: w.Album,
		ArtworkURL: w.ArtworkURL, DurationMs: w.DurationMs,
	}
}

func toWirePlayback(p roomstate.PlaybackInfo) syncproto.PlaybackWire {
	return syncproto.PlaybackWire{IsPlaying: p.IsPlaying, PositionMs: p.PositionMs, TimestampMs: p.TimestampMs}
}

func fromWirePlayback(w syncproto.PlaybackWire) roomstate.PlaybackInfo {
	return roomstate.PlaybackInfo{IsPlaying: w.IsPlaying, PositionMs: w.PositionMs, TimestampMs: w.TimestampMs}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
