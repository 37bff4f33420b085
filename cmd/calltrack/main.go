package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sebas/calltrack/internal/banner"
	"github.com/sebas/calltrack/internal/logger"
	"github.com/sebas/calltrack/internal/tracker"
	"github.com/sebas/calltrack/internal/tracker/api"
	"github.com/sebas/calltrack/internal/tracker/carrier"
	"github.com/sebas/calltrack/internal/tracker/config"
	"github.com/sebas/calltrack/internal/tracker/session"
	"github.com/sebas/calltrack/internal/tracker/sipsession"
	"github.com/sebas/calltrack/internal/tracker/store"
)

func main() {
	cfg := config.Load()

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	carrierCfg := carrier.Default()
	if cfg.CarrierConfigPath != "" {
		loaded, err := carrier.LoadFile(cfg.CarrierConfigPath)
		if err != nil {
			slog.Error("Failed to load carrier configuration", "path", cfg.CarrierConfigPath, "error", err)
			os.Exit(1)
		}
		carrierCfg = loaded
		slog.Info("Carrier configuration loaded", "path", cfg.CarrierConfigPath)
	}

	provider, err := sipsession.NewProvider(sipsession.Config{
		BindAddr:      cfg.BindAddr,
		Port:          cfg.SIPPort,
		AdvertiseAddr: cfg.AdvertiseAddr,
		ProxyAddr:     cfg.ProxyAddr,
		User:          cfg.User,
		MediaAddr:     cfg.MediaAddr,
		AudioPort:     cfg.AudioPort,
		VideoPort:     cfg.VideoPort,
		AccessTech:    session.AccessTechLTE,
		DialTimeout:   cfg.DialTimeout,
	}, slog.Default())
	if err != nil {
		slog.Error("Failed to create SIP provider", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	records := store.NewMemoryRepository()
	tr := tracker.New(provider,
		tracker.WithCarrierConfig(carrierCfg),
		tracker.WithRecords(records),
	)

	apiServer := api.NewServer(cfg.APIAddr, tr, records)

	banner.Print("CallTrack", []banner.ConfigLine{
		{Label: "SIP", Value: fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.SIPPort)},
		{Label: "Advertise", Value: cfg.AdvertiseAddr},
		{Label: "Proxy", Value: cfg.ProxyAddr},
		{Label: "API", Value: cfg.APIAddr},
		{Label: "Log level", Value: cfg.LogLevel},
	})

	slog.Info("Starting call tracker",
		"sip_port", cfg.SIPPort,
		"proxy", cfg.ProxyAddr,
		"api", cfg.APIAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Run(ctx)
	})
	g.Go(func() error {
		return provider.ListenAndServe(ctx)
	})

	if err := apiServer.Start(); err != nil {
		slog.Error("Failed to start API server", "error", err)
		os.Exit(1)
	}
	defer apiServer.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			slog.Warn("Shutdown finished with error", "error", err)
		}
	case <-time.After(3 * time.Second):
		slog.Warn("Shutdown timed out")
	}
}
