package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openorder/ledgerd/params"
	"github.com/openorder/ledgerd/pkg/api"
	"github.com/openorder/ledgerd/pkg/ledger"
	"github.com/openorder/ledgerd/pkg/p2p"
	"github.com/openorder/ledgerd/pkg/storage"
	"github.com/openorder/ledgerd/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.LogFile)

	if !common.IsHexAddress(cfg.Ledger.Controller) {
		sugar.Fatalw("invalid_controller_address", "controller", cfg.Ledger.Controller)
	}
	controller := common.HexToAddress(cfg.Ledger.Controller)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var store ledger.OrderStore
	if cfg.Ledger.DBPath != "" {
		ps, err := storage.NewPebbleStore(cfg.Ledger.DBPath)
		if err != nil {
			sugar.Fatalw("pebble_open_failed", "path", cfg.Ledger.DBPath, "err", err)
		}
		defer ps.Close()
		store = ps
		sugar.Infow("storage_ready", "path", cfg.Ledger.DBPath)
	} else {
		store = storage.NewMemStore()
		sugar.Info("storage_in_memory - orders will not survive restart")
	}

	// ---- Notification sinks ----
	hub := api.NewHub()
	sinks := ledger.MultiNotifier{api.NewHubNotifier(hub)}

	if cfg.P2P.Enabled {
		net, err := p2p.NewEventNet(ctx, p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Bootstrap:  cfg.P2P.Bootstrap,
			Logger:     sugar,
		})
		if err != nil {
			sugar.Fatalw("eventnet_init_failed", "err", err)
		}
		defer net.Close()
		sinks = append(sinks, net)
	}

	// ---- Ledger ----
	led, err := ledger.New(ledger.Config{
		Controller: controller,
		Store:      store,
		Clock:      util.RealClock{},
		Notifier:   sinks,
		Logger:     sugar,
	})
	if err != nil {
		sugar.Fatalw("ledger_init_failed", "err", err)
	}

	sugar.Infow("ledger_ready",
		"controller", controller.Hex(),
		"orders", led.Count(),
		"active", len(led.ActiveOrders()))

	// ---- API Server ----
	server := api.NewServer(led, hub)
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Addr)
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting_down")
}
