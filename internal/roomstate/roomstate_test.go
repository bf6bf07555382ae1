package roomstate

import (
	"testing"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRandomCode() roomcode.Code {
	code, err := roomcode.Random(roomcode.Short)
	if err != nil {
		panic(err)
	}
	return code
}

func activeSnapshot() Snapshot {
	return Snapshot{
		RoomCode:    mustRandomCode(),
		LocalPeerID: "local",
		HostPeerID:  "host",
		Participants: map[PeerID]Participant{
			"host":  {PeerID: "host", DisplayName: "Zoe", IsHost: true},
			"local": {PeerID: "local", DisplayName: "alice", IsHost: false},
		},
	}
}

func TestStoreStartsNone(t *testing.T) {
	s := NewStore()
	assert.Equal(t, KindNone, s.Kind())
}

func TestStartCreatingThenActivate(t *testing.T) {
	s := NewStore()
	s.StartCreating("alice")
	assert.Equal(t, KindCreating, s.Kind())
	assert.Equal(t, "alice", s.DisplayName())

	require.NoError(t, s.Activate(activeSnapshot()))
	assert.Equal(t, KindActive, s.Kind())
}

func TestStartJoiningTracksCode(t *testing.T) {
	s := NewStore()
	code := mustRandomCode()
	s.StartJoining(code, "bob")
	assert.Equal(t, KindJoining, s.Kind())

	got, ok := s.JoinCode()
	require.True(t, ok)
	assert.True(t, code.Equal(got))
}

func TestActivateRejectsMissingLocalPeer(t *testing.T) {
	s := NewStore()
	snap := activeSnapshot()
	snap.LocalPeerID = "someone-else"
	err := s.Activate(snap)
	assert.Error(t, err)
	assert.Equal(t, KindNone, s.Kind())
}

func TestActivateRejectsWrongHostCount(t *testing.T) {
	s := NewStore()
	snap := activeSnapshot()
	snap.Participants["local"] = Participant{PeerID: "local", DisplayName: "alice", IsHost: true}
	err := s.Activate(snap)
	assert.Error(t, err)
}

func TestClearReturnsToNone(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))
	s.Clear()
	assert.Equal(t, KindNone, s.Kind())
	_, ok := s.Snapshot()
	assert.False(t, ok)
}

func TestParticipantListOrdersHostFirstThenLexicographic(t *testing.T) {
	s := NewStore()
	snap := activeSnapshot()
	snap.Participants["charlie"] = Participant{PeerID: "charlie", DisplayName: "Bob", IsHost: false}
	require.NoError(t, s.Activate(snap))

	list, err := s.ParticipantList()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].IsHost)
	assert.Equal(t, "Zoe", list[0].DisplayName)
	assert.Equal(t, "alice", list[1].DisplayName)
	assert.Equal(t, "Bob", list[2].DisplayName)
}

func TestTransferHostMovesFlagAtomically(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))

	require.NoError(t, s.TransferHost("local"))
	host, ok := s.HostPeerID()
	require.True(t, ok)
	assert.Equal(t, PeerID("local"), host)

	list, err := s.ParticipantList()
	require.NoError(t, err)
	hostCount := 0
	for _, p := range list {
		if p.IsHost {
			hostCount++
			assert.Equal(t, PeerID("local"), p.PeerID)
		}
	}
	assert.Equal(t, 1, hostCount)
}

func TestTransferHostFailsOnUnknownPeer(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))

	err := s.TransferHost("ghost")
	assert.ErrorIs(t, err, ErrPeerNotPresent)

	host, _ := s.HostPeerID()
	assert.Equal(t, PeerID("host"), host)
}

func TestUpdatePlaybackRefreshesHeartbeat(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))

	assert.False(t, s.IsHeartbeatStale(time.Hour))

	require.NoError(t, s.UpdatePlayback(&TrackInfo{SongID: "1", Name: "Song"}, PlaybackInfo{IsPlaying: true, PositionMs: 1000}))
	snap, ok := s.Snapshot()
	require.True(t, ok)
	require.NotNil(t, snap.CurrentTrack)
	assert.Equal(t, "Song", snap.CurrentTrack.Name)
	assert.False(t, snap.LastHeartbeat.IsZero())
}

func TestIsHeartbeatStaleBecomesTrueAfterDuration(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))
	require.NoError(t, s.UpdatePlayback(nil, PlaybackInfo{}))

	assert.False(t, s.IsHeartbeatStale(time.Hour))
	assert.True(t, s.IsHeartbeatStale(0))
}

func TestOperationsFailWhenNotActive(t *testing.T) {
	s := NewStore()
	_, err := s.ParticipantList()
	assert.ErrorIs(t, err, ErrNotActive)

	err = s.TransferHost("x")
	assert.ErrorIs(t, err, ErrNotActive)

	err = s.UpdatePlayback(nil, PlaybackInfo{})
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestUpsertAndRemoveParticipant(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))

	require.NoError(t, s.UpsertParticipant(Participant{PeerID: "dan", DisplayName: "Dan"}))
	list, err := s.ParticipantList()
	require.NoError(t, err)
	assert.Len(t, list, 3)

	removed, ok, err := s.RemoveParticipant("dan")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dan", removed.DisplayName)

	list, err = s.ParticipantList()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestIsHostReflectsLocalPeer(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Activate(activeSnapshot()))
	assert.False(t, s.IsHost())

	require.NoError(t, s.TransferHost("local"))
	assert.True(t, s.IsHost())
}
