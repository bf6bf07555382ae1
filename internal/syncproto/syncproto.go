// Package syncproto defines the wire envelope and payload types
// exchanged over the room's pubsub topic, plus the authorization rule
// for which kinds only the host may send.
package syncproto

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the payload carried by a Message's Data field.
type Kind string

const (
	KindRoomState        Kind = "room-state"
	KindJoinRequest       Kind = "join-request"
	KindJoinResponse      Kind = "join-response"
	KindParticipantJoined Kind = "participant-joined"
	KindParticipantLeft   Kind = "participant-left"
	KindTransferHost      Kind = "transfer-host"
	KindPlay              Kind = "play"
	KindPause             Kind = "pause"
	KindSeek              Kind = "seek"
	KindTrackChange       Kind = "track-change"
	KindPing              Kind = "ping"
	KindPong              Kind = "pong"
	KindHeartbeat         Kind = "heartbeat"
)

// hostOnly lists the kinds that only the current host_peer_id may
// originate. Everything else (joins, pings, pongs) is peer-to-peer.
var hostOnly = map[Kind]bool{
	KindRoomState:        true,
	KindParticipantJoined: true,
	KindParticipantLeft:   true,
	KindTransferHost:      true,
	KindPlay:              true,
	KindPause:             true,
	KindSeek:              true,
	KindTrackChange:       true,
	KindHeartbeat:         true,
}

// IsHostOnly reports whether messages of this kind must originate from
// the room's current host to be accepted.
func IsHostOnly(k Kind) bool {
	return hostOnly[k]
}

// Authorize reports whether a message of kind sent by fromPeerID should
// be accepted given the room's current host. Join requests, responses,
// pings and pongs bypass the host check entirely.
func Authorize(kind Kind, fromPeerID, hostPeerID string) bool {
	if !IsHostOnly(kind) {
		return true
	}
	return fromPeerID == hostPeerID
}

// Message is the envelope published on the room topic: a JSON object
// whose "type" field holds the Kind (a lower-case, hyphenated name such
// as "room-state") and whose "data" field holds that kind's payload. The
// kind is a field value, not the object's key.
type Message struct {
	Kind Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`

	// From is populated by the pubsub layer from the publishing peer's
	// id; it never travels on the wire itself, since GossipSub already
	// authenticates the sender of every message it delivers.
	From string `json:"-"`
}

// Encode marshals a typed payload into a Message with the given kind.
func Encode(kind Kind, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("syncproto: encode %s: %w", kind, err)
	}
	return Message{Kind: kind, Data: raw}, nil
}

// Marshal encodes kind and payload directly to wire bytes.
func Marshal(kind Kind, payload any) ([]byte, error) {
	msg, err := Encode(kind, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Unmarshal decodes wire bytes into a Message envelope. The caller then
// type-switches on Kind and decodes Data into the matching payload.
func Unmarshal(b []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return Message{}, fmt.Errorf("syncproto: decode envelope: %w", err)
	}
	return msg, nil
}

// Decode unmarshals a Message's Data into dst.
func Decode(msg Message, dst any) error {
	if len(msg.Data) == 0 {
		return fmt.Errorf("syncproto: message %s has no data", msg.Kind)
	}
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return fmt.Errorf("syncproto: decode %s payload: %w", msg.Kind, err)
	}
	return nil
}

// ParticipantWire mirrors roomstate.Participant on the wire.
type ParticipantWire struct {
	PeerID      string `json:"peerId"`
	DisplayName string `json:"displayName"`
	IsHost      bool   `json:"isHost"`
}

// TrackWire mirrors roomstate.TrackInfo on the wire.
type TrackWire struct {
	SongID     string `json:"songId"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artworkUrl,omitempty"`
	DurationMs uint64 `json:"durationMs"`
}

// PlaybackWire mirrors roomstate.PlaybackInfo on the wire.
type PlaybackWire struct {
	IsPlaying   bool   `json:"isPlaying"`
	PositionMs  uint64 `json:"positionMs"`
	TimestampMs int64  `json:"timestampMs"`
}

// RoomStatePayload is sent by the host to a newly joined (or resyncing)
// participant: the full room snapshot.
type RoomStatePayload struct {
	RoomCode     string            `json:"roomCode"`
	HostPeerID   string            `json:"hostPeerId"`
	Participants []ParticipantWire `json:"participants"`
	CurrentTrack *TrackWire        `json:"currentTrack,omitempty"`
	Playback     PlaybackWire      `json:"playback"`
}

// JoinRequestPayload is published by a peer attempting to join a room.
type JoinRequestPayload struct {
	DisplayName string `json:"displayName"`
}

// JoinResponsePayload is the host's reply to a JoinRequest.
type JoinResponsePayload struct {
	Accepted bool             `json:"accepted"`
	Reason   string           `json:"reason,omitempty"`
	State    RoomStatePayload `json:"state,omitempty"`
}

// ParticipantJoinedPayload announces a new member to the existing room.
type ParticipantJoinedPayload struct {
	Participant ParticipantWire `json:"participant"`
}

// ParticipantLeftPayload announces a member's departure.
type ParticipantLeftPayload struct {
	PeerID string `json:"peerId"`
}

// TransferHostPayload reassigns host_peer_id.
type TransferHostPayload struct {
	NewHostPeerID string `json:"newHostPeerId"`
}

// PlayPayload resumes playback at a host-anchored position. Track
// identifies what should be loaded before seeking, since a listener may
// not have anything loaded yet (e.g. it was paused on a different track
// or just joined).
type PlayPayload struct {
	Track    TrackWire    `json:"track"`
	Playback PlaybackWire `json:"playback"`
}

// PausePayload halts playback at a host-anchored position.
type PausePayload struct {
	Playback PlaybackWire `json:"playback"`
}

// SeekPayload jumps playback to a new position.
type SeekPayload struct {
	Playback PlaybackWire `json:"playback"`
}

// TrackChangePayload switches the active track.
type TrackChangePayload struct {
	Track    TrackWire    `json:"track"`
	Playback PlaybackWire `json:"playback"`
}

// PingPayload carries the sender's capture timestamp for RTT
// measurement.
type PingPayload struct {
	TimestampMs int64 `json:"timestampMs"`
}

// PongPayload echoes back the originating ping's timestamp. ReceivedAtMs
// is the responder's local clock at receipt time; it travels on the wire
// for a future asymmetric-delay refinement but isn't consumed yet (see
// the Open Questions note in DESIGN.md).
type PongPayload struct {
	OriginalTimestampMs int64 `json:"originalTimestampMs"`
	ReceivedAtMs        int64 `json:"receivedAtMs,omitempty"`
}

// HeartbeatPayload is the host's periodic playback broadcast. TrackID
// is carried so a listener could in principle notice a missed
// TrackChange (dropped by a flaky relay hop) without waiting for the
// next RoomState refresh; the current drift-resync handler doesn't act
// on it yet.
type HeartbeatPayload struct {
	TrackID  string       `json:"trackId,omitempty"`
	Playback PlaybackWire `json:"playback"`
}
