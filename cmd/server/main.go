// Package main provides the API server entry point for the wallet insight service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/api"
	"github.com/wallet-insight/internal/circuitbreaker"
	"github.com/wallet-insight/internal/config"
	"github.com/wallet-insight/internal/httpclient"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/price"
	"github.com/wallet-insight/internal/ratelimit"
	"github.com/wallet-insight/internal/service"
	"github.com/wallet-insight/internal/storage"
	"github.com/wallet-insight/internal/types"
)

// etherscanRPS matches the free-tier limit of the Etherscan API
const etherscanRPS = 5

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.InitGlobalLogger(logging.Options{
		Level:      logging.ParseLogLevel(cfg.Logging.Level),
		Format:     logging.ParseLogFormat(cfg.Logging.Format),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer func() { _ = logger.Sync() }()

	logger.WithFields(map[string]interface{}{
		"level":        cfg.Logging.Level,
		"format":       cfg.Logging.Format,
		"cacheBackend": cfg.Cache.Backend,
	}).Info("Wallet insight server starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store       service.SnapshotStore
		redisClient *redis.Client
	)
	if cfg.Cache.Backend == "redis" || len(cfg.RateLimit.ProviderBudgets) > 0 {
		cache, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer func() { _ = cache.Close() }()
		redisClient = cache.Client()

		if cfg.Cache.Backend == "redis" {
			store = storage.NewRedisSnapshotStore(cache, 24*time.Hour)
		}
	}
	if cfg.Cache.Backend == "postgres" {
		pg, err := storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Postgres")
		}
		defer pg.Close()
		store = storage.NewPostgresSnapshotStore(pg)
	}

	var history service.SnapshotHistory
	if cfg.Database.ClickHouse.Enabled {
		ch, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer func() { _ = ch.Close() }()
		history = storage.NewClickHouseSnapshotHistory(ch)
	} else {
		logger.Info("ClickHouse disabled, snapshot history unavailable")
	}

	logger.Info("Storage initialized")

	// Upstream pacing
	var budget *ratelimit.ProviderBudget
	if redisClient != nil && len(cfg.RateLimit.ProviderBudgets) > 0 {
		budget, err = ratelimit.NewProviderBudget(&ratelimit.ProviderBudgetConfig{
			Redis:  redisClient,
			Limits: cfg.RateLimit.ProviderBudgets,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create provider budget")
		}
	}
	gate := func(provider string, local ratelimit.Gate) ratelimit.Gate {
		if budget == nil {
			return local
		}
		return ratelimit.NewBudgetGate(local, budget, provider)
	}

	breakers := circuitbreaker.NewRegistry()

	// Chain data
	etherscanHTTP := httpclient.New(httpclient.Config{
		Provider: "etherscan",
		BaseURL:  cfg.Providers.Etherscan.BaseURL,
		Timeout:  20 * time.Second,
		Gate:     gate("etherscan", ratelimit.NewTokenBucketGate(etherscanRPS, 1)),
	}, logger)
	etherscan := adapter.NewEtherscanClient(etherscanHTTP, adapter.EtherscanConfig{
		APIKey:   cfg.Providers.Etherscan.APIKey,
		PageSize: cfg.Providers.Etherscan.PageSize,
	}, logger)

	moralisHTTP := httpclient.New(httpclient.Config{
		Provider:   "moralis",
		BaseURL:    cfg.Providers.Moralis.BaseURL,
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		Headers:    map[string]string{"X-API-Key": cfg.Providers.Moralis.APIKey},
		Gate:       gate("moralis", ratelimit.NewTokenBucketGate(cfg.Providers.Moralis.RequestsPerSecond, 5)),
	}, logger)
	moralis := adapter.NewMoralisClient(moralisHTTP, cfg.Providers.Moralis.APIKey != "", logger)

	rpcEndpoints := make(map[types.ChainID]adapter.RPCEndpoints)
	for name, rpc := range cfg.Providers.RPC {
		chain, ok := types.ParseChain(name)
		if !ok {
			logger.WithField("chain", name).Warn("Skipping RPC endpoints for unknown chain")
			continue
		}
		rpcEndpoints[chain] = adapter.RPCEndpoints{Primary: rpc.Primary, Secondary: rpc.Secondary}
	}
	rpcReader := adapter.NewRPCBalanceReader(rpcEndpoints, logger)
	defer rpcReader.Close()

	chainData := adapter.NewChainDataAdapter(adapter.ChainDataAdapterConfig{
		Balances: moralis,
		Tokens:   moralis,
		History:  etherscan,
		Fallback: rpcReader,
		Breakers: breakers,
	}, logger)

	// Prices
	ccHTTP := httpclient.New(httpclient.Config{
		Provider:   "cryptocompare",
		BaseURL:    cfg.Providers.CryptoCompare.BaseURL,
		Timeout:    10 * time.Second,
		MaxRetries: 2,
		Gate:       gate("cryptocompare", ratelimit.NewTokenBucketGate(cfg.Providers.CryptoCompare.RequestsPerSecond, 5)),
	}, logger)
	oracle := price.NewAdapter(
		price.NewCryptoCompareClient(ccHTTP, cfg.Providers.CryptoCompare.APIKey),
		price.AdapterConfig{
			BatchSize:         cfg.Policy.SpotBatchSize,
			SpotTTL:           cfg.Cache.SpotPriceTTL,
			HistoricalGate:    ratelimit.NewIntervalGate(cfg.Policy.HistoricalPriceInterval),
			Breaker:           breakers.GetOrCreate("cryptocompare", nil),
			HistoricalBreaker: breakers.GetOrCreate("cryptocompare-historical", nil),
		},
	)

	logger.WithField("rpcChains", len(rpcEndpoints)).Info("Upstream adapters initialized")

	// Services
	walletService := service.NewWalletService(chainData, oracle, store, history, service.WalletServiceConfig{
		TopN:            cfg.Policy.ValuationTopN,
		FreshnessWindow: cfg.Cache.FreshnessWindow,
		MaxSymbolLength: cfg.Policy.MaxSymbolLength,
	}, logger)
	performanceService := service.NewPerformanceService(chainData, oracle, service.PerformanceServiceConfig{
		TopN:            cfg.Policy.PerformanceTopN,
		TransferWindow:  cfg.Policy.TransferWindow,
		MaxSymbolLength: cfg.Policy.MaxSymbolLength,
	}, logger)
	transactionService := service.NewTransactionService(chainData, cfg.Policy.TransactionListLimit, logger)

	logger.Info("Services initialized")

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RequestTimeout:  cfg.Server.RequestTimeout,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}, api.Services{
		Wallet:       walletService,
		Performance:  performanceService,
		Transactions: transactionService,
		Prices:       oracle,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Fatal("Server failed")
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	for provider, state := range chainData.BreakerStates() {
		logger.WithFields(map[string]interface{}{
			"provider": provider,
			"state":    state,
		}).Debug("Circuit breaker state at shutdown")
	}
	logger.Info("Server exited")
}
