package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rhi-zone/interconnect/pkg/app/game"
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

	zap.L().Info("interconnect-game started", zap.String("zone", cfg.Name))
	zap.L().Info("effective configuration", zap.Any("config", cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts2, err := zone.SessionOptions(cfg, logger)
	if err != nil {
		zap.L().Error("failed to build session options", zap.Error(err))
		return 1
	}

	world := game.NewWorld(cfg.Name, allowWeapons(cfg))
	seedWorld(world)
	app := game.New(world, cfg.Peers, logger)

	z := zone.New[game.Intent, game.Snapshot](manifest(cfg), app, opts2)

	l, err := zone.Listen(ctx, cfg.Listen)
	if err != nil {
		zap.L().Error("failed to listen", zap.Error(err))
		return 1
	}
	defer l.Close()

	tick := time.Duration(cfg.Game.TickMS) * time.Millisecond
	go z.Tick(ctx, tick, app.Step)

	if err := z.Serve(ctx, l); err != nil && ctx.Err() == nil {
		zap.L().Error("serve failed", zap.Error(err))
		return 1
	}
	zap.L().Info("interconnect-game stopped")
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

func manifest(cfg *config.Config) protocol.Manifest {
	return protocol.Manifest{
		Identity:  identity.URL(cfg.Name + "@" + cfg.Listen.Addr),
		Name:      cfg.Name,
		Substrate: "game",
	}
}

// allowWeapons resolves the zone's weapon policy: explicit config wins,
// otherwise sheltered-sounding zones refuse weapons.
func allowWeapons(cfg *config.Config) bool {
	if cfg.Game.AllowWeapons != nil {
		return *cfg.Game.AllowWeapons
	}
	name := strings.ToLower(cfg.Name)
	return !strings.Contains(name, "cave") && !strings.Contains(name, "sanctuary")
}

// seedWorld scatters some starter items so fresh zones are not empty.
func seedWorld(w *game.World) {
	w.SpawnItem(game.ItemPotion, 3, 4)
	w.SpawnItem(game.ItemTorch, -6, 2)
	w.SpawnItem(game.ItemKey, 10, -8)
	if w.AllowWeapons {
		w.SpawnItem(game.ItemSword, 0, 12)
		w.SpawnItem(game.ItemShield, -4, -4)
	}
}
