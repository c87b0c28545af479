package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/StrathCole/price-engine/pkg/adapter"
	"github.com/StrathCole/price-engine/pkg/chain"
	"github.com/StrathCole/price-engine/pkg/config"
	"github.com/StrathCole/price-engine/pkg/keeper"
	"github.com/StrathCole/price-engine/pkg/logging"
	"github.com/StrathCole/price-engine/pkg/metrics"
	"github.com/StrathCole/price-engine/pkg/price"
	"github.com/StrathCole/price-engine/pkg/server/api"
	"github.com/StrathCole/price-engine/pkg/version"

	// Import submodules to register them
	_ "github.com/StrathCole/price-engine/pkg/adapter/feeds/chainlink"
	_ "github.com/StrathCole/price-engine/pkg/adapter/feeds/fixed"
	_ "github.com/StrathCole/price-engine/pkg/adapter/feeds/httpjson"
	_ "github.com/StrathCole/price-engine/pkg/adapter/feeds/univ2"
	_ "github.com/StrathCole/price-engine/pkg/adapter/strategy"
)

var (
	configFile      = flag.String("config", "config.yaml", "Path to configuration file")
	showVer         = flag.Bool("version", false, "Show version and exit")
	checkInvariants = flag.Bool("check", false, "Verify stored state and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("%s\n", version.AgentString())
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting price-engine", "version", version.Version)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("price-engine failed", "error", err)
	}
	logger.Info("Shutdown complete")
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	db, err := dbm.NewDB(cfg.Store.Name, dbm.BackendType(cfg.Store.Backend), cfg.Store.Dir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close store", "error", err)
		}
	}()
	logger.Info("Opened store", "backend", cfg.Store.Backend, "dir", cfg.Store.Dir, "name", cfg.Store.Name)

	// An RPC connection serves both contract checks and on-chain feeds.
	var client *ethclient.Client
	var contracts price.ContractChecker
	if cfg.Chain.RPCURL != "" {
		client, err = chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return err
		}
		defer client.Close()
		contracts = chain.NewCodeChecker(client, cfg.Chain.Timeout.ToDuration())
		logger.Info("Connected to chain RPC")
	} else {
		static, err := cfg.StaticContracts()
		if err != nil {
			return err
		}
		contracts = chain.NewStaticChecker(static)
		logger.Warn("No chain RPC configured, using static contract list", "contracts", len(static))
	}

	submodules := installSubmodules(cfg, client, logger)

	admins, err := cfg.Admins()
	if err != nil {
		return err
	}
	keepers, err := cfg.Keepers()
	if err != nil {
		return err
	}

	frequency, err := cfg.Engine.ObservationFrequency.Seconds()
	if err != nil {
		return err
	}

	sinks := price.MultiSink{price.LogSink{Logger: logger.With("component", "events")}}
	var wsServer *api.WebSocketServer
	if cfg.Server.WebSocket.Enabled {
		wsServer = api.NewWebSocketServer(cfg.Decimals(), logger.With("component", "websocket"))
		sinks = append(sinks, wsServer)
		go wsServer.Run(ctx)
	}

	engine, err := price.New(price.Options{
		DB:                   db,
		Submodules:           submodules,
		Decimals:             cfg.Decimals(),
		ObservationFrequency: frequency,
		Authorizer:           price.NewAllowList(admins, keepers),
		Contracts:            contracts,
		Events:               sinks,
		Logger:               logger.With("component", "engine"),
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if *checkInvariants {
		if err := engine.CheckInvariants(); err != nil {
			return err
		}
		logger.Info("Stored state is consistent")
		return nil
	}

	bootstrapAssets(ctx, cfg, engine, admins[0], logger)

	if cfg.Keeper.Enabled {
		caller, err := config.ParseAddress(cfg.Keeper.Address)
		if err != nil {
			return err
		}
		k, err := keeper.New(engine, keeper.Config{
			Caller:        caller,
			Interval:      time.Duration(frequency) * time.Second,
			Timeout:       cfg.Keeper.Timeout.ToDuration(),
			MaxRetries:    cfg.Keeper.MaxRetries,
			RetryInterval: cfg.Keeper.RetryInterval.ToDuration(),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create keeper: %w", err)
		}
		if err := k.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Keeper.Timeout.ToDuration())
			defer stopCancel()
			k.Stop(stopCtx)
		}()
	}

	errChan := make(chan error, 1)
	var server *api.Server
	if cfg.Server.HTTP.Enabled {
		server = api.NewServer(cfg.Server.HTTP.Addr, engine, cfg.Server.QueryTimeout.ToDuration(), logger.With("component", "api"))
		if wsServer != nil {
			server.SetWebSocketServer(wsServer)
		}
		if cfg.Server.HTTP.TLS.Enabled {
			server.SetTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
		}
		go func() {
			errChan <- server.Start()
		}()
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case runErr = <-errChan:
		if runErr != nil {
			logger.Error("Component failed", "error", runErr)
		}
	}

	logger.Info("Shutting down gracefully...")
	cancel()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop HTTP server", "error", err)
		}
	}
	return runErr
}

// installSubmodules creates every configured submodule. A submodule that fails to start
// is skipped; assets depending on it fail with SubmoduleNotInstalled until it is fixed.
func installSubmodules(cfg *config.Config, client *ethclient.Client, logger *logging.Logger) *adapter.Registry {
	registry := adapter.NewRegistry()
	for _, subCfg := range cfg.Submodules {
		logger.Info("Initializing submodule", "keycode", subCfg.Keycode)

		// Add logger to config so submodules don't create their own
		conf := make(map[string]interface{}, len(subCfg.Config)+2)
		for k, v := range subCfg.Config {
			conf[k] = v
		}
		conf["logger"] = logger
		if _, ok := conf["client"]; !ok && client != nil {
			conf["client"] = client
		}

		sub, err := adapter.Create(adapter.Keycode(subCfg.Keycode), conf)
		if err != nil {
			logger.Warn("Failed to create submodule", "keycode", subCfg.Keycode, "available", adapter.List(), "error", err)
			continue
		}
		if err := registry.Install(sub); err != nil {
			logger.Warn("Failed to install submodule", "keycode", subCfg.Keycode, "error", err)
			continue
		}
	}
	logger.Info("Submodules installed", "keycodes", registry.Installed())
	return registry
}

// bootstrapAssets registers configured assets that are not yet approved.
func bootstrapAssets(ctx context.Context, cfg *config.Config, engine *price.Engine, admin common.Address, logger *logging.Logger) {
	for _, assetCfg := range cfg.Assets {
		params, err := assetCfg.AddAssetParams()
		if err != nil {
			logger.Warn("Skipping bootstrap asset", "asset", assetCfg.Address, "error", err)
			continue
		}

		approved, err := engine.IsAssetApproved(params.Asset)
		if err != nil {
			logger.Warn("Failed to read asset", "asset", params.Asset.Hex(), "error", err)
			continue
		}
		if approved {
			logger.Debug("Bootstrap asset already approved", "asset", params.Asset.Hex())
			continue
		}

		if err := engine.AddAsset(ctx, admin, params); err != nil {
			logger.Warn("Failed to register bootstrap asset", "asset", params.Asset.Hex(), "code", price.ErrorCode(err), "error", err)
			continue
		}
	}
}
