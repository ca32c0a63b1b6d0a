// Package main prints a one-off net worth, fee and P&L report for a wallet
// without touching any database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/config"
	"github.com/wallet-insight/internal/httpclient"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/price"
	"github.com/wallet-insight/internal/ratelimit"
	"github.com/wallet-insight/internal/service"
	"github.com/wallet-insight/internal/types"
)

// noStore never holds a snapshot, so every report is computed fresh
type noStore struct{}

func (noStore) Get(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, error) {
	return nil, nil
}

func (noStore) Upsert(ctx context.Context, snapshot *models.WalletSnapshot) error { return nil }

type report struct {
	Stats       *models.WalletSnapshot    `json:"stats"`
	Performance *models.PerformanceReport `json:"performance,omitempty"`
}

func main() {
	addrFlag := flag.String("address", "", "Wallet address to report on")
	chainFlag := flag.String("chain", "ethereum", "Chain: ethereum, polygon, bnb")
	skipPerf := flag.Bool("no-performance", false, "Skip the P&L section")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline")
	flag.Parse()

	if !types.IsValidAddress(*addrFlag) {
		fmt.Fprintf(os.Stderr, "invalid -address %q\n", *addrFlag)
		os.Exit(2)
	}
	chain, ok := types.ParseChain(*chainFlag)
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported -chain %q\n", *chainFlag)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.InitGlobalLogger(logging.Options{
		Level:  logging.ParseLogLevel(cfg.Logging.Level),
		Format: logging.FormatText,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	moralis := adapter.NewMoralisClient(httpclient.New(httpclient.Config{
		Provider: "moralis",
		BaseURL:  cfg.Providers.Moralis.BaseURL,
		Timeout:  15 * time.Second,
		Headers:  map[string]string{"X-API-Key": cfg.Providers.Moralis.APIKey},
		Gate:     ratelimit.NewTokenBucketGate(cfg.Providers.Moralis.RequestsPerSecond, 5),
	}, logger), cfg.Providers.Moralis.APIKey != "", logger)

	etherscan := adapter.NewEtherscanClient(httpclient.New(httpclient.Config{
		Provider: "etherscan",
		BaseURL:  cfg.Providers.Etherscan.BaseURL,
		Timeout:  20 * time.Second,
		Gate:     ratelimit.NewTokenBucketGate(5, 1),
	}, logger), adapter.EtherscanConfig{
		APIKey:   cfg.Providers.Etherscan.APIKey,
		PageSize: cfg.Providers.Etherscan.PageSize,
	}, logger)

	chainData := adapter.NewChainDataAdapter(adapter.ChainDataAdapterConfig{
		Balances: moralis,
		Tokens:   moralis,
		History:  etherscan,
	}, logger)

	oracle := price.NewAdapter(price.NewCryptoCompareClient(httpclient.New(httpclient.Config{
		Provider: "cryptocompare",
		BaseURL:  cfg.Providers.CryptoCompare.BaseURL,
		Timeout:  10 * time.Second,
		Gate:     ratelimit.NewTokenBucketGate(cfg.Providers.CryptoCompare.RequestsPerSecond, 5),
	}, logger), cfg.Providers.CryptoCompare.APIKey), price.AdapterConfig{
		BatchSize:      cfg.Policy.SpotBatchSize,
		HistoricalGate: ratelimit.NewIntervalGate(cfg.Policy.HistoricalPriceInterval),
	})

	wallet := service.NewWalletService(chainData, oracle, noStore{}, nil, service.WalletServiceConfig{
		TopN:            cfg.Policy.ValuationTopN,
		FreshnessWindow: cfg.Cache.FreshnessWindow,
		MaxSymbolLength: cfg.Policy.MaxSymbolLength,
	}, logger)

	var out report
	out.Stats, _, err = wallet.GetWalletStats(ctx, *addrFlag, chain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
		os.Exit(1)
	}

	if !*skipPerf {
		perf := service.NewPerformanceService(chainData, oracle, service.PerformanceServiceConfig{
			TopN:            cfg.Policy.PerformanceTopN,
			TransferWindow:  cfg.Policy.TransferWindow,
			MaxSymbolLength: cfg.Policy.MaxSymbolLength,
		}, logger)
		out.Performance, err = perf.GetPerformance(ctx, *addrFlag, chain)
		if err != nil {
			fmt.Fprintf(os.Stderr, "performance failed: %v\n", err)
			os.Exit(1)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}
}
