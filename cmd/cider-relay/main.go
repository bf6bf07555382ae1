// Command cider-relay runs the standalone circuit-relay / rendezvous
// service described in spec §4.8: a long-running libp2p node offering
// relay, identify, ping and DHT participation to Cider session nodes
// behind NATs.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giorgiobrullo/cider-sync/internal/config"
	"github.com/giorgiobrullo/cider-sync/internal/logging"
	"github.com/giorgiobrullo/cider-sync/internal/relay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	noDashboard := flag.Bool("no-dashboard", false, "stream logs instead of rendering the terminal dashboard")
	flag.Parse()

	if err := run(*noDashboard); err != nil {
		fmt.Fprintln(os.Stderr, "cider-relay:", err)
		os.Exit(1)
	}
}

func run(noDashboard bool) error {
	cfg := config.LoadRelayConfig()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	identity, err := relay.LoadOrCreateIdentity(cfg.KeypairPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := relay.New(ctx, relay.Config{
		TCPPort:  cfg.TCPPort,
		QUICPort: cfg.QUICPort,
		Identity: identity,
	}, logger)
	if err != nil {
		return fmt.Errorf("build relay server: %w", err)
	}
	defer srv.Close()

	logger.Info("cider-relay: starting",
		zap.String("peer_id", srv.Host().ID().String()),
		zap.Int("tcp_port", cfg.TCPPort),
		zap.Int("quic_port", cfg.QUICPort),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("cider-relay: metrics server exited", zap.Error(err))
		}
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()

	if noDashboard {
		logger.Info("cider-relay: running in streaming-log mode (--no-dashboard)")
	} else {
		go relay.RunDashboard(ctx, os.Stdout, srv.Metrics)
	}

	err = <-runDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	return err
}
