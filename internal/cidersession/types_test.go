package cidersession

import (
	"testing"

	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStateFromSnapshot(t *testing.T) {
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

	state := roomStateFromSnapshot(snap)
	assert.Equal(t, code.String(), state.RoomCode)
	assert.Equal(t, "host", state.HostPeerID)
	assert.Equal(t, "local", state.LocalPeerID)
	assert.Len(t, state.Participants, 2)
	require.NotNil(t, state.CurrentTrack)
	assert.Equal(t, "Song", state.CurrentTrack.Name)
	assert.True(t, state.Playback.IsPlaying)
}

func TestRoomStateFromSnapshotNilTrack(t *testing.T) {
	state := roomStateFromSnapshot(roomstate.Snapshot{})
	assert.Nil(t, state.CurrentTrack)
}

func TestNopCallbacksImplementsInterface(t *testing.T) {
	var cb Callbacks = NopCallbacks{}
	cb.OnConnected()
	cb.OnDisconnected()
	cb.OnError("kind", "message")
}
