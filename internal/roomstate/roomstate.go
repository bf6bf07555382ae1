// Package roomstate models the room lifecycle (None -> Creating|Joining
// -> Active -> None) and the membership/playback state held while Active.
package roomstate

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
)

// PeerID is the transport-level peer identity. It is opaque to this
// package; netp2p supplies it from the libp2p host's own peer.ID.
type PeerID string

// Kind identifies which variant of the Room sum type is occupied.
type Kind int

// Room variants, per spec §3: a process occupies exactly one at a time.
const (
	KindNone Kind = iota
	KindCreating
	KindJoining
	KindActive
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCreating:
		return "creating"
	case KindJoining:
		return "joining"
	case KindActive:
		return "active"
	default:
		return "unknown"
	}
}

// Participant is a room member as seen over the wire.
type Participant struct {
	PeerID      PeerID
	DisplayName string
	IsHost      bool
}

// TrackInfo describes the track currently selected by the host.
type TrackInfo struct {
	SongID     string
	Name       string
	Artist     string
	Album      string
	ArtworkURL string
	DurationMs uint64
}

// PlaybackInfo is a timestamped playback position, anchored at the
// sender's wall clock at capture time.
type PlaybackInfo struct {
	IsPlaying   bool
	PositionMs  uint64
	TimestampMs int64
}

// Snapshot is the full state of an Active room.
type Snapshot struct {
	RoomCode      roomcode.Code
	LocalPeerID   PeerID
	HostPeerID    PeerID
	Participants  map[PeerID]Participant
	CurrentTrack  *TrackInfo
	Playback      PlaybackInfo
	LastHeartbeat time.Time
}

func (s Snapshot) clone() Snapshot {
	cp := s
	cp.Participants = make(map[PeerID]Participant, len(s.Participants))
	for k, v := range s.Participants {
		cp.Participants[k] = v
	}
	if s.CurrentTrack != nil {
		t := *s.CurrentTrack
		cp.CurrentTrack = &t
	}
	return cp
}

var (
	// ErrNotActive is returned by operations that require an Active room.
	ErrNotActive = errors.New("roomstate: room is not active")
	// ErrPeerNotPresent is returned by TransferHost for an unknown peer.
	ErrPeerNotPresent = errors.New("roomstate: peer is not a participant")
)

// Store holds the current Room variant plus, when Active, the room
// Snapshot, guarded by a single RWMutex so every mutation observed by a
// handler is atomic with respect to readers.
type Store struct {
	mu   sync.RWMutex
	kind Kind

	// Creating / Joining
	displayName string
	joinCode    roomcode.Code

	// Active
	snap Snapshot
}

// NewStore returns a Store in the None variant.
func NewStore() *Store {
	return &Store{kind: KindNone}
}

// Kind reports which variant is currently occupied.
func (s *Store) Kind() Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// StartCreating sets the Creating variant. It does not check the current
// variant itself; the sync engine only calls it (and StartJoining) from
// None, which keeps Creating and Joining mutually exclusive.
func (s *Store) StartCreating(displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindCreating
	s.displayName = displayName
	s.joinCode = roomcode.Code{}
}

// StartJoining transitions None -> Joining.
func (s *Store) StartJoining(code roomcode.Code, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindJoining
	s.displayName = displayName
	s.joinCode = code
}

// DisplayName returns the locally-chosen display name, valid in any
// non-None variant.
func (s *Store) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// JoinCode returns the code a Joining room is trying to reach.
func (s *Store) JoinCode() (roomcode.Code, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindJoining {
		return roomcode.Code{}, false
	}
	return s.joinCode, true
}

// Activate transitions Creating|Joining -> Active with the given
// Snapshot. It enforces invariants (ii) and (i) from spec §3: exactly one
// participant is host and local_peer_id is present.
func (s *Store) Activate(snap Snapshot) error {
	if err := validateSnapshot(snap); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindActive
	s.snap = snap.clone()
	return nil
}

func validateSnapshot(snap Snapshot) error {
	if _, ok := snap.Participants[snap.LocalPeerID]; !ok {
		return errors.New("roomstate: local_peer_id missing from participants")
	}
	hostCount := 0
	for id, p := range snap.Participants {
		if p.IsHost {
			hostCount++
			if id != snap.HostPeerID {
				return errors.New("roomstate: is_host participant does not match host_peer_id")
			}
		}
	}
	if hostCount != 1 {
		return errors.New("roomstate: exactly one participant must be host")
	}
	return nil
}

// Clear transitions any variant back to None, e.g. on LeaveRoom or after
// the host disappears.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = KindNone
	s.displayName = ""
	s.joinCode = roomcode.Code{}
	s.snap = Snapshot{}
}

// Snapshot returns a deep copy of the Active room's state.
func (s *Store) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindActive {
		return Snapshot{}, false
	}
	return s.snap.clone(), true
}

// HostPeerID returns the current host, if Active.
func (s *Store) HostPeerID() (PeerID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindActive {
		return "", false
	}
	return s.snap.HostPeerID, true
}

// LocalPeerID returns the local participant's id, if Active.
func (s *Store) LocalPeerID() (PeerID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindActive {
		return "", false
	}
	return s.snap.LocalPeerID, true
}

// IsHost reports whether the local peer is currently the host.
func (s *Store) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindActive {
		return false
	}
	return s.snap.HostPeerID == s.snap.LocalPeerID
}

// UpsertParticipant inserts or overwrites a participant by peer id.
func (s *Store) UpsertParticipant(p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindActive {
		return ErrNotActive
	}
	s.snap.Participants[p.PeerID] = p
	return nil
}

// RemoveParticipant deletes a participant by peer id, returning the
// removed value if present.
func (s *Store) RemoveParticipant(id PeerID) (Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindActive {
		return Participant{}, false, ErrNotActive
	}
	p, ok := s.snap.Participants[id]
	if ok {
		delete(s.snap.Participants, id)
	}
	return p, ok, nil
}

// ParticipantList returns participants ordered with the host first, then
// the rest lexicographically by display name (case-insensitive).
func (s *Store) ParticipantList() ([]Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindActive {
		return nil, ErrNotActive
	}
	out := make([]Participant, 0, len(s.snap.Participants))
	for _, p := range s.snap.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsHost != out[j].IsHost {
			return out[i].IsHost
		}
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out, nil
}

// TransferHost flips is_host on the old and new host and updates
// host_peer_id atomically. It fails if newPeerID is not present.
func (s *Store) TransferHost(newPeerID PeerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindActive {
		return ErrNotActive
	}
	newP, ok := s.snap.Participants[newPeerID]
	if !ok {
		return ErrPeerNotPresent
	}
	if oldP, ok := s.snap.Participants[s.snap.HostPeerID]; ok {
		oldP.IsHost = false
		s.snap.Participants[s.snap.HostPeerID] = oldP
	}
	newP.IsHost = true
	s.snap.Participants[newPeerID] = newP
	s.snap.HostPeerID = newPeerID
	return nil
}

// UpdatePlayback replaces the current track (if non-nil) and playback
// info, and refreshes the last-heartbeat instant.
func (s *Store) UpdatePlayback(track *TrackInfo, playback PlaybackInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kind != KindActive {
		return ErrNotActive
	}
	if track != nil {
		t := *track
		s.snap.CurrentTrack = &t
	}
	s.snap.Playback = playback
	s.snap.LastHeartbeat = time.Now()
	return nil
}

// IsHeartbeatStale reports whether no accepted playback update has
// arrived from the host within dur.
func (s *Store) IsHeartbeatStale(dur time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind != KindActive {
		return false
	}
	if s.snap.LastHeartbeat.IsZero() {
		return false
	}
	return time.Since(s.snap.LastHeartbeat) > dur
}
