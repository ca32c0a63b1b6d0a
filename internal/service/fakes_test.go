package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/price"
	"github.com/wallet-insight/internal/types"
)

const wallet = "0x00000000000000000000000000000000000000aa"

type fakeChainData struct {
	mu sync.Mutex

	nativeWei    *big.Int
	nativeErr    error
	tokens       []types.TokenBalance
	tokensErr    error
	transfers    []types.TokenTransfer
	transfersErr error
	txs          []types.Transaction
	txsErr       error

	calls         int
	transferLimit int
	includeSpam   []bool
}

func (f *fakeChainData) record() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeChainData) GetNativeBalance(ctx context.Context, address string, chain types.ChainID) (*big.Int, error) {
	f.record()
	return f.nativeWei, f.nativeErr
}

// GetTokenBalances drops provider-flagged rows unless includeSpam is set,
// like the real adapter.
func (f *fakeChainData) GetTokenBalances(ctx context.Context, address string, chain types.ChainID, includeSpam bool) ([]types.TokenBalance, error) {
	f.record()
	f.mu.Lock()
	f.includeSpam = append(f.includeSpam, includeSpam)
	f.mu.Unlock()
	if f.tokensErr != nil {
		return nil, f.tokensErr
	}
	if includeSpam {
		return f.tokens, nil
	}
	out := make([]types.TokenBalance, 0, len(f.tokens))
	for _, tok := range f.tokens {
		if !tok.PossibleSpam {
			out = append(out, tok)
		}
	}
	return out, nil
}

func (f *fakeChainData) GetTokenTransfers(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.TokenTransfer, error) {
	f.record()
	f.mu.Lock()
	f.transferLimit = limit
	f.mu.Unlock()
	return f.transfers, f.transfersErr
}

func (f *fakeChainData) GetTransactionHistory(ctx context.Context, address string, chain types.ChainID) ([]types.Transaction, error) {
	f.record()
	return f.txs, f.txsErr
}

func (f *fakeChainData) GetRecentTransactions(ctx context.Context, address string, chain types.ChainID, limit int) ([]types.Transaction, error) {
	f.record()
	return f.txs, f.txsErr
}

var _ adapter.ChainDataProvider = (*fakeChainData)(nil)

// fakePriceProvider sits behind a real price.Adapter
type fakePriceProvider struct {
	mu sync.Mutex

	spot       map[string]float64
	spotErr    error
	historical map[string]map[int64]float64
	spotCalls  [][]string
	histCalls  int
}

func (f *fakePriceProvider) Name() string { return "fake" }

func (f *fakePriceProvider) SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spotCalls = append(f.spotCalls, append([]string(nil), symbols...))
	if f.spotErr != nil {
		return nil, f.spotErr
	}
	out := make(map[string]float64)
	for _, s := range symbols {
		if p, ok := f.spot[s]; ok {
			out[s] = p
		}
	}
	return out, nil
}

func (f *fakePriceProvider) HistoricalPrice(ctx context.Context, symbol string, unixTs int64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histCalls++
	p, ok := f.historical[strings.ToUpper(symbol)][unixTs]
	if !ok {
		return 0, fmt.Errorf("%w for %s at %d", price.ErrNoPriceData, symbol, unixTs)
	}
	return p, nil
}

func newOracle(p *fakePriceProvider) *price.Adapter {
	return price.NewAdapter(p, price.AdapterConfig{})
}

type memStore struct {
	mu        sync.Mutex
	snapshots map[string]*models.WalletSnapshot
	getErr    error
	upsertErr error
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{snapshots: make(map[string]*models.WalletSnapshot)}
}

func storeKey(address string, chain types.ChainID) string {
	return types.NormalizeAddress(address) + ":" + string(chain)
}

func (m *memStore) Get(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.snapshots[storeKey(address, chain)], nil
}

func (m *memStore) Upsert(ctx context.Context, snapshot *models.WalletSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.snapshots[storeKey(snapshot.Address, snapshot.Chain)] = snapshot
	return nil
}

type memHistory struct {
	entries []models.SnapshotHistoryEntry
}

func (m *memHistory) Append(ctx context.Context, snapshot *models.WalletSnapshot) error {
	m.entries = append(m.entries, models.HistoryEntryFromSnapshot(snapshot))
	return nil
}

func (m *memHistory) List(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error) {
	var out []models.SnapshotHistoryEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].Address == address && m.entries[i].Chain == chain {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func token(addr, symbol, raw string, decimals int) types.TokenBalance {
	return types.TokenBalance{TokenAddress: addr, Symbol: symbol, Name: symbol, RawBalance: raw, Decimals: decimals}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
