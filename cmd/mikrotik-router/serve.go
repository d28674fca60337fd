package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/micro-ha/mikrotik-router/internal/config"
	"github.com/micro-ha/mikrotik-router/internal/configsync"
	"github.com/micro-ha/mikrotik-router/internal/controller"
	httpapi "github.com/micro-ha/mikrotik-router/internal/http"
	"github.com/micro-ha/mikrotik-router/internal/logging"
	"github.com/micro-ha/mikrotik-router/internal/metrics"
	"github.com/micro-ha/mikrotik-router/internal/oui"
	"github.com/micro-ha/mikrotik-router/internal/poller"
	"github.com/micro-ha/mikrotik-router/internal/routeros"
	"github.com/micro-ha/mikrotik-router/internal/storage"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

// app is the wired object graph shared by serve and once.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	client     *routeros.Client
	repo       *storage.Repository
	options    *configsync.Manager
	metrics    *metrics.Metrics
	controller *controller.Controller
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	vendors, err := oui.LoadEmbedded()
	if cfg.OUIPath != "" {
		vendors, err = oui.LoadFile(cfg.OUIPath)
	}
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("load oui db: %w", err)
	}

	client, err := routeros.NewClient(routeros.ConfigFromRouter(cfg.Router), logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("router client: %w", err)
	}

	options := configsync.NewManager(cfg.Router, logger)
	m := metrics.New()
	c := controller.New(client, store.New(), logger, controller.Options{
		Config:      options.Get,
		Registry:    repo,
		Vendors:     vendors,
		Metrics:     m,
		LockTimeout: cfg.LockTimeout,
	})
	return &app{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		repo:       repo,
		options:    options,
		metrics:    m,
		controller: c,
	}, nil
}

func (rt *app) Close() {
	if err := rt.client.Close(); err != nil {
		rt.logger.Warn("close router client failed", "err", err)
	}
	if err := rt.repo.Close(); err != nil {
		rt.logger.Warn("close storage failed", "err", err)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the poller and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	rt, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	devicePoller, err := poller.New(rt.controller, func() time.Duration {
		return rt.options.Get().ScanInterval()
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := devicePoller.Close(); err != nil {
			logger.Warn("stop poller failed", "err", err)
		}
	}()
	go devicePoller.Run(ctx)

	api := httpapi.New(rt.controller, devicePoller, logger, httpapi.Options{
		Options: rt.options,
		Device:  rt.client,
		Metrics: rt.metrics.Handler(),
	})
	httpServer := &http.Server{
		Addr:              rt.cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr, "router", rt.cfg.Router.Host)
	if err := httpapi.RunServer(ctx, httpServer, logger); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server terminated: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run one polling cycle and print the entity model as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			rt.controller.HWInfo(ctx)
			rt.controller.Update(ctx)
			if !rt.controller.Connected() {
				return fmt.Errorf("router %s: %w (%s)", rt.cfg.Router.Host, routeros.ErrNotConnected, rt.client.Error())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rt.controller.Snapshot())
		},
	}
}
