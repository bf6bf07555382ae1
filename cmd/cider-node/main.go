// Command cider-node runs a standalone Cider session process: it builds
// the embeddable Session façade (internal/cidersession) from environment
// configuration and, when CIDER_STATUS_WS_ADDR is set, pushes every
// Session event to a local status websocket. The websocket is one-way and
// the process takes no commands, so it never creates or joins a room.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/cidersession"
	"github.com/giorgiobrullo/cider-sync/internal/config"
	"github.com/giorgiobrullo/cider-sync/internal/logging"
	"github.com/giorgiobrullo/cider-sync/internal/netp2p"
	"github.com/giorgiobrullo/cider-sync/internal/statuspush"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cider-node:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadNodeConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	netCfg := netp2p.Config{
		ListenPort:     cfg.ListenPort,
		BootstrapPeers: cfg.BootstrapPeers,
		RelayAddrs:     cfg.RelayAddrs,
		UserAgent:      "cider-node",
	}

	sess, err := cidersession.New(ctx, cfg.PlayerBaseURL, cfg.PlayerAPIToken, netCfg, logger)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	defer sess.Close()

	var hub *statuspush.Hub
	if cfg.StatusWSAddr != "" {
		hub = statuspush.NewHub(logger)
		sess.SetCallback(&statusCallbacks{hub: hub, logger: logger})

		mux := http.NewServeMux()
		mux.HandleFunc("/status", hub.ServeHTTP)
		statusSrv := &http.Server{Addr: cfg.StatusWSAddr, Handler: mux}
		go func() {
			if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("cider-node: status server exited", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = statusSrv.Shutdown(shutdownCtx)
		}()
		logger.Info("cider-node: status websocket listening", zap.String("addr", cfg.StatusWSAddr))
	}

	logger.Info("cider-node: started", zap.String("player_base_url", cfg.PlayerBaseURL))

	<-ctx.Done()
	logger.Info("cider-node: shutting down")
	return nil
}

// statusCallbacks forwards every Session event onto the status
// websocket as a tagged Event, alongside discarding nothing: an FFI
// caller attaches its own Callbacks directly to the Session instead of
// going through this process at all.
type statusCallbacks struct {
	hub    *statuspush.Hub
	logger *zap.Logger
}

func (s *statusCallbacks) OnRoomStateChanged(state cidersession.RoomState) {
	s.hub.Broadcast(statuspush.Event{Kind: "room_state_changed", Data: state})
}

func (s *statusCallbacks) OnTrackChanged(track cidersession.Track) {
	s.hub.Broadcast(statuspush.Event{Kind: "track_changed", Data: track})
}

func (s *statusCallbacks) OnPlaybackChanged(playback cidersession.Playback) {
	s.hub.Broadcast(statuspush.Event{Kind: "playback_changed", Data: playback})
}

func (s *statusCallbacks) OnParticipantJoined(p cidersession.Participant) {
	s.hub.Broadcast(statuspush.Event{Kind: "participant_joined", Data: p})
}

func (s *statusCallbacks) OnParticipantLeft(peerID string) {
	s.hub.Broadcast(statuspush.Event{Kind: "participant_left", Data: map[string]string{"peerId": peerID}})
}

func (s *statusCallbacks) OnRoomEnded(reason string) {
	s.hub.Broadcast(statuspush.Event{Kind: "room_ended", Data: map[string]string{"reason": reason}})
}

func (s *statusCallbacks) OnError(kind, message string) {
	s.logger.Warn("cider-node: session error", zap.String("kind", kind), zap.String("message", message))
	s.hub.Broadcast(statuspush.Event{Kind: "error", Data: map[string]string{"kind": kind, "message": message}})
}

func (s *statusCallbacks) OnConnected() {
	s.hub.Broadcast(statuspush.Event{Kind: "connected"})
}

func (s *statusCallbacks) OnDisconnected() {
	s.hub.Broadcast(statuspush.Event{Kind: "disconnected"})
}

func (s *statusCallbacks) OnSyncStatus(status cidersession.SyncStatus) {
	s.hub.Broadcast(statuspush.Event{Kind: "sync_status", Data: status})
}
