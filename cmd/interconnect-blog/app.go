package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/app/blog"
	"github.com/rhi-zone/interconnect/pkg/config"
	"github.com/rhi-zone/interconnect/pkg/identity"
	"github.com/rhi-zone/interconnect/pkg/observability"
	"github.com/rhi-zone/interconnect/pkg/protocol"
	"github.com/rhi-zone/interconnect/pkg/zone"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}
	applyOverrides(cfg, opts)

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	zap.L().Info("interconnect-blog started", zap.String("zone", cfg.Name))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts2, err := zone.SessionOptions(cfg, logger)
	if err != nil {
		zap.L().Error("failed to build session options", zap.Error(err))
		return 1
	}

	// The feed broadcasts on every change; the zone exists before any
	// session can mutate it.
	var z *zone.Zone[blog.Intent, blog.Snapshot]
	app := blog.New(cfg.Name, cfg.Peers, func() { z.Broadcast() }, logger)
	z = zone.New[blog.Intent, blog.Snapshot](protocol.Manifest{
		Identity:  identity.URL(cfg.Name + "@" + cfg.Listen.Addr),
		Name:      cfg.Name,
		Substrate: "blog",
	}, app, opts2)

	l, err := zone.Listen(ctx, cfg.Listen)
	if err != nil {
		zap.L().Error("failed to listen", zap.Error(err))
		return 1
	}
	defer l.Close()

	if err := z.Serve(ctx, l); err != nil && ctx.Err() == nil {
		zap.L().Error("serve failed", zap.Error(err))
		return 1
	}
	zap.L().Info("interconnect-blog stopped")
	return 0
}

func applyOverrides(cfg *config.Config, opts Options) {
	if opts.Name != "" {
		cfg.Name = opts.Name
	}
	if opts.Listen != "" {
		cfg.Listen.Addr = opts.Listen
	}
	if len(opts.Peers) > 0 {
		cfg.Peers = opts.Peers
	}
}
