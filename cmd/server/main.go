package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"certmint/internal/access"
	"certmint/internal/audit"
	"certmint/internal/config"
	"certmint/internal/db"
	"certmint/internal/ledger"
	"certmint/internal/logging"
	"certmint/internal/minting"
	"certmint/internal/server"
	"certmint/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var assetStore store.AssetStore
	var auditLog audit.Log
	if cfg.DatabaseURL != "" {
		if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()
		assetStore = store.NewPostgres(pool)
		auditLog = audit.NewPostgresLog(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		assetStore = store.NewMemory()
		auditLog = audit.NewMemoryLog()
	}

	ledgers := make(map[string]ledger.Client, len(cfg.Chains))
	for name, spec := range cfg.Chains {
		if cfg.Secrets.SignerPrivateKey == "" {
			logger.Warn().Str("chain", name).Msg("no signing key, using fake ledger client")
			ledgers[name] = ledger.NewFakeClient()
			continue
		}
		cli, err := ledger.NewEthClient(ctx, ledger.EthClientConfig{
			RPCURL:        spec.RPCURL,
			PrivateKeyHex: cfg.Secrets.SignerPrivateKey,
			ContractAddr:  spec.Contract,
			BlockTime:     spec.BlockTime(),
		}, logger.With().Str("chain", name).Logger())
		if err != nil {
			logger.Fatal().Err(err).Str("chain", name).Msg("ledger client failed")
		}
		ledgers[name] = cli
	}

	metrics := minting.NewMetrics()

	controller := minting.NewController(
		assetStore, ledgers, cfg.Chains, cfg.DefaultChain, auditLog, metrics, logger)

	reconciler := minting.NewReconciler(
		assetStore, ledgers, cfg.Chains, auditLog, metrics,
		cfg.Service.MintLease, cfg.Service.ReconcileInterval, logger)
	go reconciler.Run(ctx)

	verifier := &access.TokenVerifier{Secret: cfg.Secrets.AuthJWTSecret}
	apiServer := server.New(cfg, controller, assetStore, verifier, metrics, ledgers, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Info().Err(err).Msg("server stopped")
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
}
