// Package syncengine is the host-broadcast / listener-ping orchestration
// layer: it owns room state transitions and every inbound sync-message
// handler, and drives the player-control adapter to keep the local
// player converged on the host's position.
package syncengine

import (
	"context"
	"sync"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/calibrator"
	"github.com/giorgiobrullo/cider-sync/internal/cidererr"
	"github.com/giorgiobrullo/cider-sync/internal/latency"
	"github.com/giorgiobrullo/cider-sync/internal/netp2p"
	"github.com/giorgiobrullo/cider-sync/internal/playerclient"
	"github.com/giorgiobrullo/cider-sync/internal/roomcode"
	"github.com/giorgiobrullo/cider-sync/internal/roomstate"
	"github.com/giorgiobrullo/cider-sync/internal/syncproto"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

const (
	hostBroadcastInterval = 1500 * time.Millisecond
	listenerPingInterval  = 5 * time.Second
	heartbeatStaleAfter   = 15 * time.Second
	trackLoadPollInterval = 100 * time.Millisecond
	trackLoadTimeout      = 5 * time.Second
	driftResyncThreshold  = 3000.0
	joinRequestRetries    = 5
	joinRequestInterval   = time.Second
	joinRequestFirstDelay = 500 * time.Millisecond
	joinWaitTimeout       = 10 * time.Second
)

// SyncStatus is emitted on every Heartbeat handled as a listener, for the
// UI to render drift/calibration diagnostics.
type SyncStatus struct {
	DriftMs            float64
	LatencyMs          float64
	ElapsedMs          float64
	SeekOffsetMs       float64
	CalibrationPending bool
	PreviewMs          float64
	PreviewOK          bool
}

// Callbacks is the UI-facing notification surface.
type Callbacks interface {
	ParticipantJoined(p roomstate.Participant)
	ParticipantLeft(peerID roomstate.PeerID)
	RoomStateChanged(snap roomstate.Snapshot)
	TrackChanged(track roomstate.TrackInfo, playback roomstate.PlaybackInfo)
	PlaybackChanged(playback roomstate.PlaybackInfo)
	RoomEnded(reason string)
	SyncStatus(status SyncStatus)
	Error(err error)
}

// notifyRoomState forwards the current snapshot, if any, to RoomStateChanged.
func (e *Engine) notifyRoomState() {
	if snap, ok := e.room.Snapshot(); ok {
		e.callbacks.RoomStateChanged(snap)
	}
}

// Engine wires netp2p, playerclient, roomstate, latency and calibrator
// together into the two control loops and handler set described by the
// sync protocol.
type Engine struct {
	logger    *zap.Logger
	net       *netp2p.Node
	player    *playerclient.Client
	room      *roomstate.Store
	latencyEst *latency.Estimator
	calib     *calibrator.Calibrator
	callbacks Callbacks

	localPeerID roomstate.PeerID

	mu                  sync.Mutex
	lastBroadcastSongID string
	hostCancel          context.CancelFunc
	listenerCancel      context.CancelFunc
	joinWaitCancel      context.CancelFunc
}

// New constructs an Engine. net must already be running its event loop.
func New(net *netp2p.Node, player *playerclient.Client, logger *zap.Logger, callbacks Callbacks) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:      logger,
		net:         net,
		player:      player,
		room:        roomstate.NewStore(),
		latencyEst:  latency.New(),
		calib:       calibrator.New(),
		callbacks:   callbacks,
		localPeerID: roomstate.PeerID(net.Host().ID().String()),
	}
	go e.dispatchLoop()
	return e
}

// Room exposes the room state store for read-only UI queries.
func (e *Engine) Room() *roomstate.Store { return e.room }

func (e *Engine) sendCommand(cmd netp2p.Command) error {
	reply := make(chan error, 1)
	cmd.Reply = reply
	select {
	case e.net.Commands() <- cmd:
	case <-time.After(5 * time.Second):
		return cidererr.New(cidererr.KindNetwork, "command channel full")
	}
	return <-reply
}

// CreateRoom generates a fresh room code, becomes its host, and starts
// the host broadcast loop.
func (e *Engine) CreateRoom(displayName string) (roomcode.Code, error) {
	if e.room.Kind() != roomstate.KindNone {
		return roomcode.Code{}, cidererr.New(cidererr.KindAlreadyInRoom, "create room")
	}
	code, err := roomcode.Random(roomcode.Short)
	if err != nil {
		return roomcode.Code{}, cidererr.Wrap(cidererr.KindInternal, "generate room code", err)
	}
	e.room.StartCreating(displayName)

	if err := e.sendCommand(netp2p.Command{Kind: netp2p.CmdCreateRoom, RoomCode: code.String()}); err != nil {
		e.room.Clear()
		return roomcode.Code{}, cidererr.Wrap(cidererr.KindNetwork, "create room", err)
	}

	snap := roomstate.Snapshot{
		RoomCode:    code,
		LocalPeerID: e.localPeerID,
		HostPeerID:  e.localPeerID,
		Participants: map[roomstate.PeerID]roomstate.Participant{
			e.localPeerID: {PeerID: e.localPeerID, DisplayName: displayName, IsHost: true},
		},
	}
	if err := e.room.Activate(snap); err != nil {
		return roomcode.Code{}, cidererr.Wrap(cidererr.KindInternal, "activate created room", err)
	}
	e.notifyRoomState()

	e.startHostBroadcastLoop()
	return code, nil
}

// JoinRoom subscribes to an existing room's topic and begins the join
// handshake: subscribe, retry JoinRequest, wait up to joinWaitTimeout for
// a RoomState.
func (e *Engine) JoinRoom(code roomcode.Code, displayName string) error {
	if e.room.Kind() != roomstate.KindNone {
		return cidererr.New(cidererr.KindAlreadyInRoom, "join room")
	}
	e.room.StartJoining(code, displayName)

	if err := e.sendCommand(netp2p.Command{Kind: netp2p.CmdJoinRoom, RoomCode: code.String()}); err != nil {
		e.room.Clear()
		return cidererr.Wrap(cidererr.KindNetwork, "join room", err)
	}

	e.startListenerPingLoop()
	go e.joinRequestRetryLoop(displayName)
	go e.joinWaitTimeoutLoop()
	return nil
}

// LeaveRoom stops both control loops, unsubscribes, and clears state.
func (e *Engine) LeaveRoom() error {
	if e.room.Kind() == roomstate.KindNone {
		return cidererr.New(cidererr.KindNotInRoom, "leave room")
	}
	e.stopLoops()
	err := e.sendCommand(netp2p.Command{Kind: netp2p.CmdLeaveRoom})
	e.room.Clear()
	if err != nil {
		return cidererr.Wrap(cidererr.KindNetwork, "leave room", err)
	}
	return nil
}

func (e *Engine) stopLoops() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hostCancel != nil {
		e.hostCancel()
		e.hostCancel = nil
	}
	if e.listenerCancel != nil {
		e.listenerCancel()
		e.listenerCancel = nil
	}
	if e.joinWaitCancel != nil {
		e.joinWaitCancel()
		e.joinWaitCancel = nil
	}
}

func (e *Engine) joinRequestRetryLoop(displayName string) {
	time.Sleep(joinRequestFirstDelay)
	for i := 0; i < joinRequestRetries; i++ {
		if e.room.Kind() != roomstate.KindJoining {
			return
		}
		e.publish(syncproto.KindJoinRequest, syncproto.JoinRequestPayload{DisplayName: displayName})
		time.Sleep(joinRequestInterval)
	}
}

func (e *Engine) joinWaitTimeoutLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.joinWaitCancel = cancel
	e.mu.Unlock()

	select {
	case <-time.After(joinWaitTimeout):
		if e.room.Kind() == roomstate.KindJoining {
			e.callbacks.Error(cidererr.New(cidererr.KindJoinTimeout, "room not found"))
			_ = e.LeaveRoom()
		}
	case <-ctx.Done():
	}
}

func (e *Engine) publish(kind syncproto.Kind, payload any) {
	raw, err := syncproto.Marshal(kind, payload)
	if err != nil {
		e.callbacks.Error(cidererr.Wrap(cidererr.KindInternal, "encode message", err))
		return
	}
	if err := e.sendCommand(netp2p.Command{Kind: netp2p.CmdBroadcast, Payload: raw}); err != nil {
		e.logger.Debug("syncengine: broadcast failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (e *Engine) hostPeerID() (roomstate.PeerID, bool) {
	return e.room.HostPeerID()
}

func peerIDFrom(p peer.ID) roomstate.PeerID {
	return roomstate.PeerID(p.String())
}
