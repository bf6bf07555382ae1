package syncproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := PlayPayload{
		Track:    TrackWire{SongID: "1", Name: "Song"},
		Playback: PlaybackWire{IsPlaying: true, PositionMs: 4200, TimestampMs: 1000},
	}
	raw, err := Marshal(KindPlay, payload)
	require.NoError(t, err)

	msg, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, KindPlay, msg.Kind)

	var got PlayPayload
	require.NoError(t, Decode(msg, &got))
	assert.Equal(t, payload, got)
}

func TestDecodeEmptyDataFails(t *testing.T) {
	msg := Message{Kind: KindPing}
	var got PingPayload
	err := Decode(msg, &got)
	assert.Error(t, err)
}

func TestUnmarshalInvalidJSONFails(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))
	assert.Error(t, err)
}

func TestHostOnlyKinds(t *testing.T) {
	assert.True(t, IsHostOnly(KindPlay))
	assert.True(t, IsHostOnly(KindPause))
	assert.True(t, IsHostOnly(KindSeek))
	assert.True(t, IsHostOnly(KindTrackChange))
	assert.True(t, IsHostOnly(KindHeartbeat))
	assert.True(t, IsHostOnly(KindTransferHost))
	assert.True(t, IsHostOnly(KindRoomState))
	assert.True(t, IsHostOnly(KindParticipantJoined))
	assert.True(t, IsHostOnly(KindParticipantLeft))

	assert.False(t, IsHostOnly(KindJoinRequest))
	assert.False(t, IsHostOnly(KindJoinResponse))
	assert.False(t, IsHostOnly(KindPing))
	assert.False(t, IsHostOnly(KindPong))
}

func TestAuthorizeRejectsNonHostSenderForHostOnlyKinds(t *testing.T) {
	assert.True(t, Authorize(KindPlay, "host", "host"))
	assert.False(t, Authorize(KindPlay, "impostor", "host"))
}

func TestAuthorizeAlwaysAllowsJoinAndPingPong(t *testing.T) {
	assert.True(t, Authorize(KindJoinRequest, "anyone", "host"))
	assert.True(t, Authorize(KindJoinResponse, "anyone", "host"))
	assert.True(t, Authorize(KindPing, "anyone", "host"))
	assert.True(t, Authorize(KindPong, "anyone", "host"))
}

func TestTrackChangePayloadRoundTrip(t *testing.T) {
	track := TrackWire{SongID: "abc", Name: "Song", Artist: "Artist", Album: "Album", DurationMs: 180000}
	raw, err := Marshal(KindTrackChange, TrackChangePayload{Track: track, Playback: PlaybackWire{}})
	require.NoError(t, err)

	msg, err := Unmarshal(raw)
	require.NoError(t, err)

	var got TrackChangePayload
	require.NoError(t, Decode(msg, &got))
	assert.Equal(t, track, got.Track)
}
