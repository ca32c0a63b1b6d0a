package adapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/types"
)

const rpcProvider = "rpc"

// balanceClient is the subset of ethclient.Client used for balance reads
type balanceClient interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Dialer opens a JSON-RPC connection to url
type Dialer func(ctx context.Context, url string) (balanceClient, error)

func dialEthclient(ctx context.Context, url string) (balanceClient, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// RPCEndpoints holds the primary and optional secondary endpoint of a chain
type RPCEndpoints struct {
	Primary   string
	Secondary string
}

// RPCBalanceReader reads native balances over JSON-RPC. Each chain has a
// primary endpoint and an optional secondary that is tried when the primary
// fails. Connections are opened lazily and reused.
type RPCBalanceReader struct {
	endpoints map[types.ChainID]RPCEndpoints
	dial      Dialer
	logger    *logging.Logger

	mu      sync.Mutex
	clients map[string]balanceClient
}

// NewRPCBalanceReader creates a reader over the configured endpoints
func NewRPCBalanceReader(endpoints map[types.ChainID]RPCEndpoints, logger *logging.Logger) *RPCBalanceReader {
	return newRPCBalanceReader(endpoints, dialEthclient, logger)
}

func newRPCBalanceReader(endpoints map[types.ChainID]RPCEndpoints, dial Dialer, logger *logging.Logger) *RPCBalanceReader {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &RPCBalanceReader{
		endpoints: endpoints,
		dial:      dial,
		logger:    logger.WithField("provider", rpcProvider),
		clients:   make(map[string]balanceClient),
	}
}

// Supports reports whether an endpoint is configured for chain
func (r *RPCBalanceReader) Supports(chain types.ChainID) bool {
	ep, ok := r.endpoints[chain]
	return ok && ep.Primary != ""
}

// GetNativeBalance returns the latest balance of address in wei
func (r *RPCBalanceReader) GetNativeBalance(ctx context.Context, address string, chain types.ChainID) (*big.Int, error) {
	const op = "GetNativeBalance"
	if !r.Supports(chain) {
		return nil, NewAdapterError(rpcProvider, chain, op, ErrNotConfigured, nil)
	}
	ep := r.endpoints[chain]
	account := common.HexToAddress(address)

	urls := []string{ep.Primary}
	if ep.Secondary != "" {
		urls = append(urls, ep.Secondary)
	}

	var lastErr error
	for i, url := range urls {
		balance, err := r.balanceAt(ctx, url, account)
		if err == nil {
			return balance, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		r.logger.WithFields(map[string]interface{}{
			"chain":    chain,
			"endpoint": i,
		}).WithError(err).Warn("RPC balance read failed")
	}

	return nil, NewAdapterError(rpcProvider, chain, op, ErrProviderUnavailable, map[string]interface{}{"cause": lastErr.Error()})
}

func (r *RPCBalanceReader) balanceAt(ctx context.Context, url string, account common.Address) (*big.Int, error) {
	client, err := r.client(ctx, url)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance: %w", err)
	}
	return balance, nil
}

func (r *RPCBalanceReader) client(ctx context.Context, url string) (balanceClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[url]; ok {
		return c, nil
	}
	c, err := r.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}
	r.clients[url] = c
	return c, nil
}

// Close closes every open connection
func (r *RPCBalanceReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for url, c := range r.clients {
		c.Close()
		delete(r.clients, url)
	}
}
