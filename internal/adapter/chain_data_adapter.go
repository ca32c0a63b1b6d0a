package adapter

import (
	"context"
	stderrors "errors"
	"math/big"

	"github.com/wallet-insight/internal/circuitbreaker"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/types"
)

// NativeBalanceSource reads native balances
type NativeBalanceSource interface {
	GetNativeBalance(ctx context.Context, address string, chain types.ChainID) (*big.Int, error)
}

// TokenBalanceSource reads fungible token balances
type TokenBalanceSource interface {
	GetTokenBalances(ctx context.Context, address string, chain types.ChainID, includeSpam bool) ([]types.TokenBalance, error)
}

// HistorySource reads transactions and token transfers
type HistorySource interface {
	GetTokenTransfers(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.TokenTransfer, error)
	GetTransactionHistory(ctx context.Context, address string, chain types.ChainID) ([]types.Transaction, error)
	GetRecentTransactions(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.Transaction, error)
}

// ChainDataAdapter combines the balance and history providers behind one
// ChainDataProvider. Every provider call runs through that provider's
// circuit breaker. Native balances fall back to JSON-RPC when the balance
// provider fails and an endpoint is configured for the chain.
type ChainDataAdapter struct {
	balances NativeBalanceSource
	tokens   TokenBalanceSource
	history  HistorySource
	fallback *RPCBalanceReader // optional
	breakers *circuitbreaker.Registry
	logger   *logging.Logger
}

// ChainDataAdapterConfig wires the providers of a ChainDataAdapter
type ChainDataAdapterConfig struct {
	Balances NativeBalanceSource
	Tokens   TokenBalanceSource
	History  HistorySource
	Fallback *RPCBalanceReader
	Breakers *circuitbreaker.Registry
}

// NewChainDataAdapter creates the composite adapter
func NewChainDataAdapter(cfg ChainDataAdapterConfig, logger *logging.Logger) *ChainDataAdapter {
	if cfg.Breakers == nil {
		cfg.Breakers = circuitbreaker.NewRegistry()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ChainDataAdapter{
		balances: cfg.Balances,
		tokens:   cfg.Tokens,
		history:  cfg.History,
		fallback: cfg.Fallback,
		breakers: cfg.Breakers,
		logger:   logger,
	}
}

// GetNativeBalance implements ChainDataProvider
func (a *ChainDataAdapter) GetNativeBalance(ctx context.Context, address string, chain types.ChainID) (*big.Int, error) {
	const op = "GetNativeBalance"
	address = types.NormalizeAddress(address)

	var balance *big.Int
	err := a.guard(ctx, moralisProvider, chain, op, func(ctx context.Context) error {
		var err error
		balance, err = a.balances.GetNativeBalance(ctx, address, chain)
		return err
	})
	if err == nil {
		return balance, nil
	}
	if ctx.Err() != nil || a.fallback == nil || !a.fallback.Supports(chain) {
		return nil, err
	}

	a.logger.WithFields(map[string]interface{}{
		"address": address,
		"chain":   chain,
	}).WithError(err).Warn("Native balance provider failed, falling back to RPC")

	err = a.guard(ctx, rpcProvider, chain, op, func(ctx context.Context) error {
		var ferr error
		balance, ferr = a.fallback.GetNativeBalance(ctx, address, chain)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// GetTokenBalances implements ChainDataProvider
func (a *ChainDataAdapter) GetTokenBalances(ctx context.Context, address string, chain types.ChainID, includeSpam bool) ([]types.TokenBalance, error) {
	var balances []types.TokenBalance
	err := a.guard(ctx, moralisProvider, chain, "GetTokenBalances", func(ctx context.Context) error {
		var err error
		balances, err = a.tokens.GetTokenBalances(ctx, types.NormalizeAddress(address), chain, includeSpam)
		return err
	})
	return balances, err
}

// GetTokenTransfers implements ChainDataProvider
func (a *ChainDataAdapter) GetTokenTransfers(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.TokenTransfer, error) {
	var transfers []types.TokenTransfer
	err := a.guard(ctx, etherscanProvider, chain, "GetTokenTransfers", func(ctx context.Context) error {
		var err error
		transfers, err = a.history.GetTokenTransfers(ctx, types.NormalizeAddress(address), chain, limit)
		return err
	})
	return transfers, err
}

// GetTransactionHistory implements ChainDataProvider
func (a *ChainDataAdapter) GetTransactionHistory(ctx context.Context, address string, chain types.ChainID) ([]types.Transaction, error) {
	var txs []types.Transaction
	err := a.guard(ctx, etherscanProvider, chain, "GetTransactionHistory", func(ctx context.Context) error {
		var err error
		txs, err = a.history.GetTransactionHistory(ctx, types.NormalizeAddress(address), chain)
		return err
	})
	return txs, err
}

// GetRecentTransactions implements ChainDataProvider
func (a *ChainDataAdapter) GetRecentTransactions(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.Transaction, error) {
	var txs []types.Transaction
	err := a.guard(ctx, etherscanProvider, chain, "GetRecentTransactions", func(ctx context.Context) error {
		var err error
		txs, err = a.history.GetRecentTransactions(ctx, types.NormalizeAddress(address), chain, limit)
		return err
	})
	return txs, err
}

// BreakerStates reports the circuit state of every provider
func (a *ChainDataAdapter) BreakerStates() map[string]circuitbreaker.State {
	return a.breakers.States()
}

func (a *ChainDataAdapter) guard(ctx context.Context, provider string, chain types.ChainID, op string, fn func(ctx context.Context) error) error {
	cb := a.breakers.GetOrCreate(provider, nil)
	err := cb.Execute(ctx, fn)
	if stderrors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return NewAdapterError(provider, chain, op, ErrProviderUnavailable, map[string]interface{}{"circuit": "open"})
	}
	return err
}
