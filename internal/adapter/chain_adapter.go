package adapter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/wallet-insight/internal/types"
)

// ChainDataProvider is the chain-data surface the services depend on. All
// returned addresses are lowercase.
type ChainDataProvider interface {
	// GetNativeBalance returns the wallet's native balance in wei
	GetNativeBalance(ctx context.Context, address string, chain types.ChainID) (*big.Int, error)

	// GetTokenBalances returns fungible token holdings. Provider-flagged spam
	// is dropped unless includeSpam is set; kept entries carry PossibleSpam.
	GetTokenBalances(ctx context.Context, address string, chain types.ChainID, includeSpam bool) ([]types.TokenBalance, error)

	// GetTokenTransfers returns at most limit of the most recent token
	// transfers touching the wallet, newest first
	GetTokenTransfers(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.TokenTransfer, error)

	// GetTransactionHistory returns every native transaction of the wallet,
	// paging through the provider until the history is exhausted
	GetTransactionHistory(ctx context.Context, address string, chain types.ChainID) ([]types.Transaction, error)

	// GetRecentTransactions returns at most limit transactions, newest first
	GetRecentTransactions(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.Transaction, error)
}

// Common error types for chain adapters

var (
	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrProviderRateLimit indicates the provider rate limit was exceeded
	ErrProviderRateLimit = fmt.Errorf("provider rate limit exceeded")

	// ErrUnsupportedChain indicates the provider has no mapping for the chain
	ErrUnsupportedChain = fmt.Errorf("unsupported chain")

	// ErrNotConfigured indicates a provider is missing its API key or endpoint
	ErrNotConfigured = fmt.Errorf("provider not configured")

	// ErrMalformedResponse indicates the provider returned an unparsable payload
	ErrMalformedResponse = fmt.Errorf("malformed provider response")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Provider string
	Chain    types.ChainID
	Op       string // Operation that failed (e.g., "GetTokenBalances")
	Err      error
	Details  map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s error [%s:%s]: %v (details: %+v)", e.Provider, e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s error [%s:%s]: %v", e.Provider, e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(provider string, chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Chain:    chain,
		Op:       op,
		Err:      err,
		Details:  details,
	}
}

func lookupChain(provider string, chain types.ChainID, op string) (types.ChainSpec, error) {
	spec, ok := types.LookupChain(chain)
	if !ok {
		return types.ChainSpec{}, NewAdapterError(provider, chain, op, ErrUnsupportedChain, nil)
	}
	return spec, nil
}
