package syncengine

import (
	"testing"

	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRoundTripsParticipantTrackPlayback(t *testing.T) {
	p := roomstate.Participant{PeerID: "host", DisplayName: "Zoe", IsHost: true}
	assert.Equal(t, p, fromWireParticipant(toWireParticipant(p)))

	track := &roomstate.TrackInfo{SongID: "1", Name: "Song", Artist: "Artist", Album: "Album", DurationMs: 180000}
	assert.Equal(t, track, fromWireTrack(toWireTrack(track)))
	assert.Nil(t, toWireTrack(nil))
	assert.Nil(t, fromWireTrack(nil))

	playback := roomstate.PlaybackInfo{IsPlaying: true, PositionMs: 4200, TimestampMs: 1000}
	assert.Equal(t, playback, fromWirePlayback(toWirePlayback(playback)))
}

func TestSnapshotToPayloadRoundTrip(t *testing.T) {
	code, err := roomcode.Random(roomcode.Short)
	require.NoError(t, err)

	snap := roomstate.Snapshot{
		RoomCode:    code,
		LocalPeerID: "local",
		HostPeerID:  "host",
		Participants: map[roomstate.PeerID]roomstate.Participant{
			"host":  {PeerID: "host", DisplayName: "Zoe", IsHost: true},
			"local": {PeerID: "local", DisplayName: "alice"},
		},
		CurrentTrack: &roomstate.TrackInfo{SongID: "1", Name: "Song"},
		Playback:     roomstate.PlaybackInfo{IsPlaying: true, PositionMs: 1000},
	}

	payload := snapshotToPayload(snap)
	assert.Equal(t, code.String(), payload.RoomCode)
	assert.Equal(t, "host", payload.HostPeerID)
	assert.Len(t, payload.Participants, 2)
	require.NotNil(t, payload.CurrentTrack)
	assert.Equal(t, "Song", payload.CurrentTrack.Name)

	back := payloadToSnapshot(payload, code, "local", "alice")
	assert.Equal(t, snap.HostPeerID, back.HostPeerID)
	assert.Equal(t, snap.Playback, back.Playback)
	assert.Len(t, back.Participants, 2)
}

func TestPayloadToSnapshotAddsMissingLocalParticipant(t *testing.T) {
	code, err := roomcode.Random(roomcode.Short)
	require.NoError(t, err)

	payload := snapshotToPayload(roomstate.Snapshot{
		RoomCode:   code,
		HostPeerID: "host",
		Participants: map[roomstate.PeerID]roomstate.Participant{
			"host": {PeerID: "host", DisplayName: "Zoe", IsHost: true},
		},
	})

	snap := payloadToSnapshot(payload, code, "local", "newcomer")
	local, ok := snap.Participants["local"]
	require.True(t, ok)
	assert.Equal(t, "newcomer", local.DisplayName)
}
