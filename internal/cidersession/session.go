package cidersession

import (
	"context"
	"sync"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/cidererr"
	"github.com/giorgiobrullo/cider-sync/internal/netp2p"
	"github.com/giorgiobrullo/cider-sync/internal/playerclient"
	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncengine"
	"go.uber.org/zap"
)

const connectionPollInterval = 3 * time.Second

// Session is the single embeddable entry point: one Session owns one
// libp2p node, one sync engine, and one player client, and dispatches
// every state change through the installed Callbacks.
type Session struct {
	logger *zap.Logger
	player *playerclient.Client
	net    *netp2p.Node
	engine *syncengine.Engine

	cbMu sync.RWMutex
	cb   Callbacks

	connMu      sync.Mutex
	wasConnected bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Session: it assembles the libp2p node and sync engine,
// and starts the player-connectivity watchdog. playerBaseURL and
// apiToken configure the player-control adapter (§6); netCfg controls
// the underlying libp2p host (§4.6).
func New(ctx context.Context, playerBaseURL, apiToken string, netCfg netp2p.Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sessCtx, cancel := context.WithCancel(ctx)

	player := playerclient.New(playerBaseURL, apiToken)

	node, err := netp2p.New(sessCtx, netCfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		logger: logger,
		player: player,
		net:    node,
		ctx:    sessCtx,
		cancel: cancel,
		cb:     NopCallbacks{},
	}
	s.engine = syncengine.New(node, player, logger, (*engineCallbacks)(s))

	go s.watchPlayerConnection()
	return s, nil
}

// Close tears down the session's network node and background loops.
func (s *Session) Close() {
	select {
	case s.net.Commands() <- netp2p.Command{Kind: netp2p.CmdShutdown}:
	default:
	}
	s.cancel()
}

func (s *Session) callbacks() Callbacks {
	s.cbMu.RLock()
	defer s.cbMu.RUnlock()
	return s.cb
}

// SetCallback installs the FFI-facing notification target, replacing
// any previously installed one.
func (s *Session) SetCallback(cb Callbacks) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if cb == nil {
		cb = NopCallbacks{}
	}
	s.cb = cb
}

// SetPlayerToken updates the apitoken header used for the player
// control adapter's requests.
func (s *Session) SetPlayerToken(token string) {
	s.player.SetAPIToken(token)
}

// CheckPlayerConnection reports whether the player control adapter is
// currently reachable.
func (s *Session) CheckPlayerConnection(ctx context.Context) (bool, error) {
	ok, err := s.player.Active(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Session) watchPlayerConnection() {
	ticker := time.NewTicker(connectionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(s.ctx, connectionPollInterval/2)
			ok, _ := s.player.Active(ctx)
			cancel()

			s.connMu.Lock()
			changed := ok != s.wasConnected
			s.wasConnected = ok
			s.connMu.Unlock()

			if !changed {
				continue
			}
			if ok {
				s.callbacks().OnConnected()
			} else {
				s.callbacks().OnDisconnected()
			}
		}
	}
}

// GetNowPlaying returns the player's currently loaded track.
func (s *Session) GetNowPlaying(ctx context.Context) (Track, error) {
	np, err := s.player.NowPlayingInfo(ctx)
	if err != nil {
		return Track{}, err
	}
	return Track{
		SongID: np.SongID, Name: np.Name, Artist: np.Artist, Album: np.Album,
		ArtworkURL: np.ArtworkURL, DurationMs: np.DurationMs,
	}, nil
}

// GetIsPlaying reports the player's current playing state.
func (s *Session) GetIsPlaying(ctx context.Context) (bool, error) {
	return s.player.IsPlaying(ctx)
}

// GetPlaybackState returns the player's current position and playing
// state together.
func (s *Session) GetPlaybackState(ctx context.Context) (Playback, error) {
	np, err := s.player.NowPlayingInfo(ctx)
	if err != nil {
		return Playback{}, err
	}
	return Playback{IsPlaying: np.IsPlaying, PositionMs: np.PositionMs, TimestampMs: time.Now().UnixMilli()}, nil
}

// CreateRoom generates a room code and becomes its host.
func (s *Session) CreateRoom(displayName string) (string, error) {
	code, err := s.engine.CreateRoom(displayName)
	if err != nil {
		return "", err
	}
	return code.String(), nil
}

// JoinRoom parses code and joins an existing room, returning
// cidererr.KindProtocol-wrapped errors for a malformed code string.
func (s *Session) JoinRoom(codeStr, displayName string) error {
	code, ok := roomcode.Parse(codeStr, roomcode.Short)
	if !ok {
		code, ok = roomcode.Parse(codeStr, roomcode.Long)
	}
	if !ok {
		return cidererr.New(cidererr.KindProtocol, "invalid room code")
	}
	return s.engine.JoinRoom(code, displayName)
}

// LeaveRoom departs the current room, if any.
func (s *Session) LeaveRoom() error {
	return s.engine.LeaveRoom()
}

// TransferHost reassigns host_peer_id to newHostPeerID. Host-only.
func (s *Session) TransferHost(newHostPeerID string) error {
	return s.engine.TransferHostTo(roomstate.PeerID(newHostPeerID))
}

// SyncPlay resumes playback and broadcasts it to the room. Host-only.
func (s *Session) SyncPlay() error { return s.engine.SyncPlay() }

// SyncPause pauses playback and broadcasts it to the room. Host-only.
func (s *Session) SyncPause() error { return s.engine.SyncPause() }

// SyncSeek seeks to positionMs and broadcasts it to the room. Host-only.
func (s *Session) SyncSeek(positionMs uint64) error { return s.engine.SyncSeek(positionMs) }

// SyncNext advances to the next track. Host-only.
func (s *Session) SyncNext() error { return s.engine.SyncNext() }

// SyncPrevious returns to the previous track. Host-only.
func (s *Session) SyncPrevious() error { return s.engine.SyncPrevious() }

// BroadcastPlayback force-publishes the current playback state ahead of
// the host loop's next tick. Host-only.
func (s *Session) BroadcastPlayback() error { return s.engine.BroadcastPlayback() }

// BroadcastTrackChange force-publishes a TrackChange for the current
// track. Host-only.
func (s *Session) BroadcastTrackChange() error { return s.engine.BroadcastTrackChange() }

// GetRoomState returns the current room snapshot, if any.
func (s *Session) GetRoomState() (RoomState, bool) {
	snap, ok := s.engine.Room().Snapshot()
	if !ok {
		return RoomState{}, false
	}
	return roomStateFromSnapshot(snap), true
}

// IsHost reports whether this session is the current room's host.
func (s *Session) IsHost() bool { return s.engine.IsHost() }

// IsInRoom reports whether this session is part of an active room.
func (s *Session) IsInRoom() bool { return s.engine.IsInRoom() }
