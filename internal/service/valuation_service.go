package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/metrics"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/price"
	"github.com/wallet-insight/internal/spam"
	"github.com/wallet-insight/internal/types"
)

// SnapshotStore keeps the latest snapshot per (address, chain). Get returns
// nil with no error when nothing is stored.
type SnapshotStore interface {
	Get(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, error)
	Upsert(ctx context.Context, snapshot *models.WalletSnapshot) error
}

// SnapshotHistory archives every freshly computed snapshot
type SnapshotHistory interface {
	Append(ctx context.Context, snapshot *models.WalletSnapshot) error
	List(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error)
}

// Insight thresholds
const (
	diversifiedTokenCount = 5
	whaleNetWorthUSD      = 100000
	activeUserGasNative   = 1
)

// WalletServiceConfig holds valuation policy
type WalletServiceConfig struct {
	TopN            int           // Valid tokens priced per snapshot, in arrival order
	FreshnessWindow time.Duration // Snapshots younger than this are served from the store
	MaxSymbolLength int
}

// WalletService computes and caches wallet net worth and fee totals
type WalletService struct {
	chainData  adapter.ChainDataProvider
	oracle     price.Oracle
	store      SnapshotStore
	history    SnapshotHistory // optional
	classifier *spam.Classifier
	topN       int
	window     time.Duration
	now        func() time.Time
	logger     *logging.Logger
}

// NewWalletService creates a new wallet valuation service
func NewWalletService(
	chainData adapter.ChainDataProvider,
	oracle price.Oracle,
	store SnapshotStore,
	history SnapshotHistory,
	cfg WalletServiceConfig,
	logger *logging.Logger,
) *WalletService {
	if cfg.TopN <= 0 {
		cfg.TopN = 15
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &WalletService{
		chainData:  chainData,
		oracle:     oracle,
		store:      store,
		history:    history,
		classifier: spam.NewClassifier(cfg.MaxSymbolLength),
		topN:       cfg.TopN,
		window:     cfg.FreshnessWindow,
		now:        time.Now,
		logger:     logger,
	}
}

// SetClock replaces the service clock, for tests
func (s *WalletService) SetClock(now func() time.Time) {
	s.now = now
}

// GetWalletStats returns the wallet's snapshot, from the store when it is
// fresh and otherwise recomputed from upstream data. cached reports whether
// the stored snapshot was served.
func (s *WalletService) GetWalletStats(ctx context.Context, address string, chain types.ChainID) (*models.WalletSnapshot, bool, error) {
	address = types.NormalizeAddress(address)
	spec, ok := types.LookupChain(chain)
	if !ok {
		return nil, false, errors.NewUnsupportedChainError(string(chain))
	}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": address,
		"chain":   chain,
	})

	cachedSnap, err := s.store.Get(ctx, address, chain)
	switch {
	case err != nil:
		metrics.SnapshotCache.WithLabelValues("error").Inc()
		logger.WithError(err).Warn("Snapshot store read failed, recomputing")
	case cachedSnap == nil:
		metrics.SnapshotCache.WithLabelValues("miss").Inc()
	case cachedSnap.IsFresh(s.now(), s.window):
		metrics.SnapshotCache.WithLabelValues("hit").Inc()
		return cachedSnap, true, nil
	default:
		metrics.SnapshotCache.WithLabelValues("stale").Inc()
	}

	snapshot, err := s.compute(ctx, address, spec, logger)
	if err != nil {
		return nil, false, err
	}

	if err := s.store.Upsert(ctx, snapshot); err != nil {
		logger.WithError(err).Warn("Failed to save snapshot")
	}
	if s.history != nil {
		if err := s.history.Append(ctx, snapshot); err != nil {
			logger.WithError(err).Warn("Failed to archive snapshot")
		}
	}

	return snapshot, false, nil
}

// ListHistory returns archived snapshots, newest first
func (s *WalletService) ListHistory(ctx context.Context, address string, chain types.ChainID, limit int) ([]models.SnapshotHistoryEntry, error) {
	if _, ok := types.LookupChain(chain); !ok {
		return nil, errors.NewUnsupportedChainError(string(chain))
	}
	if s.history == nil {
		return nil, errors.NewServiceUnavailableError("snapshot history")
	}
	entries, err := s.history.List(ctx, types.NormalizeAddress(address), chain, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list snapshot history", err)
	}
	return entries, nil
}

func (s *WalletService) compute(ctx context.Context, address string, spec types.ChainSpec, logger *logging.Logger) (*models.WalletSnapshot, error) {
	var (
		nativeWei *big.Int
		tokens    []types.TokenBalance
		txs       []types.Transaction
		txErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nativeWei, err = s.chainData.GetNativeBalance(gctx, address, spec.ID)
		if err != nil {
			return upstreamError("GetNativeBalance", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tokens, err = s.chainData.GetTokenBalances(gctx, address, spec.ID, true)
		if err != nil {
			return upstreamError("GetTokenBalances", err)
		}
		return nil
	})
	g.Go(func() error {
		txs, txErr = s.chainData.GetTransactionHistory(gctx, address, spec.ID)
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	classified := s.classifier.Classify(tokens)
	top := classified.Valid
	if len(top) > s.topN {
		top = top[:s.topN]
	}

	snapshot := &models.WalletSnapshot{
		Address:        address,
		Chain:          spec.ID,
		NativeSymbol:   spec.NativeSymbol,
		SpamTokenCount: classified.SpamCount(),
		Tokens:         make([]models.TokenHolding, 0, len(top)),
		Insights:       []models.Insight{},
		LastUpdated:    s.now().UTC(),
	}

	symbols := make([]string, 0, len(top)+1)
	symbols = append(symbols, spec.NativeSymbol)
	for _, tok := range top {
		symbols = append(symbols, tok.Symbol)
	}
	prices, priceFig := s.spotPrices(ctx, symbols)
	s.degrade(snapshot, models.FigureSpotPrices, priceFig, logger)

	nativePrice := decimal.NewFromFloat(prices[strings.ToUpper(spec.NativeSymbol)])
	nativeAmount := types.WeiToNative(nativeWei, spec.NativeDecimals)
	nativeUSD := nativeAmount.Mul(nativePrice)

	type valued struct {
		holding models.TokenHolding
		usd     decimal.Decimal
	}
	holdings := make([]valued, 0, len(top))
	for _, tok := range top {
		amount, err := tok.Amount()
		if err != nil {
			logger.WithField("token", tok.TokenAddress).WithError(err).Warn("Skipping token with unparsable balance")
			continue
		}
		p := decimal.NewFromFloat(prices[strings.ToUpper(tok.Symbol)])
		usd := amount.Mul(p)
		holdings = append(holdings, valued{
			holding: models.TokenHolding{
				Symbol:       tok.Symbol,
				Name:         tok.Name,
				TokenAddress: tok.TokenAddress,
				Balance:      amount.InexactFloat64(),
				Price:        p.InexactFloat64(),
				ValueUSD:     usd.InexactFloat64(),
			},
			usd: usd,
		})
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].usd.GreaterThan(holdings[j].usd)
	})

	netWorth := nativeUSD
	for _, h := range holdings {
		netWorth = netWorth.Add(h.usd)
		snapshot.Tokens = append(snapshot.Tokens, h.holding)
	}

	gasNative, gasFig := s.gasPaid(address, txs, txErr, spec)
	s.degrade(snapshot, models.FigureGasPaid, gasFig, logger)

	snapshot.NativePriceUSD = nativePrice.InexactFloat64()
	snapshot.NativeBalance = nativeAmount.InexactFloat64()
	snapshot.NativeBalanceUSD = nativeUSD.InexactFloat64()
	snapshot.NetWorthUSD = netWorth.InexactFloat64()
	if nativePrice.IsPositive() {
		snapshot.NetWorthNative = netWorth.Div(nativePrice).InexactFloat64()
	}
	snapshot.TotalGasPaidNative = gasNative.InexactFloat64()
	snapshot.TotalGasPaidUSD = gasNative.Mul(nativePrice).InexactFloat64()
	snapshot.Insights = buildInsights(snapshot)

	logger.WithFields(map[string]interface{}{
		"netWorthUSD": snapshot.NetWorthUSD,
		"tokens":      len(snapshot.Tokens),
		"spam":        snapshot.SpamTokenCount,
		"degraded":    len(snapshot.Degraded),
	}).Info("Computed wallet snapshot")

	return snapshot, nil
}

// spotPrices fetches every symbol in one oracle call. A failure yields an
// empty map so every price reads as 0.
func (s *WalletService) spotPrices(ctx context.Context, symbols []string) (map[string]float64, types.Figure) {
	prices, err := s.oracle.GetSpotPrices(ctx, symbols)
	if err != nil {
		return map[string]float64{}, types.Unavailable(err)
	}
	return prices, types.Computed(float64(len(prices)))
}

// gasPaid sums gasUsed*gasPrice over every transaction sent by address
func (s *WalletService) gasPaid(address string, txs []types.Transaction, fetchErr error, spec types.ChainSpec) (decimal.Decimal, types.Figure) {
	if fetchErr != nil {
		return decimal.Zero, types.Unavailable(fmt.Errorf("transaction history: %w", fetchErr))
	}

	total := new(big.Int)
	for _, tx := range txs {
		if !types.SameAddress(tx.From, address) {
			continue
		}
		cost, err := tx.GasCostWei()
		if err != nil {
			s.logger.WithField("txHash", tx.Hash).WithError(err).Warn("Skipping transaction with unparsable gas")
			continue
		}
		total.Add(total, cost)
	}

	gas := types.WeiToNative(total, spec.NativeDecimals)
	return gas, types.Computed(gas.InexactFloat64())
}

func (s *WalletService) degrade(snapshot *models.WalletSnapshot, name string, f types.Figure, logger *logging.Logger) {
	if !f.Degraded() {
		return
	}
	snapshot.Degrade(name, f)
	metrics.DegradedFigures.WithLabelValues(name).Inc()
	logger.WithField("figure", name).WithField("reason", f.Reason).Warn("Figure unavailable, defaulting to 0")
}

func buildInsights(s *models.WalletSnapshot) []models.Insight {
	insights := []models.Insight{}
	if len(s.Tokens) > diversifiedTokenCount {
		insights = append(insights, models.Insight{
			Title:   "Diversified",
			Type:    models.InsightSuccess,
			Message: fmt.Sprintf("Holding %d verified assets.", len(s.Tokens)),
		})
	}
	if s.NetWorthUSD > whaleNetWorthUSD {
		insights = append(insights, models.Insight{
			Title:   "Whale Status",
			Type:    models.InsightInfo,
			Message: "High value portfolio.",
		})
	}
	if s.TotalGasPaidNative > activeUserGasNative {
		insights = append(insights, models.Insight{
			Title:   "Active User",
			Type:    models.InsightWarning,
			Message: fmt.Sprintf("Burned %.2f %s in fees.", s.TotalGasPaidNative, s.NativeSymbol),
		})
	}
	return insights
}

// upstreamError converts a critical provider failure into UPSTREAM_UNAVAILABLE
func upstreamError(op string, err error) error {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	provider := "chain-data"
	var adapterErr *adapter.AdapterError
	if stderrors.As(err, &adapterErr) {
		provider = adapterErr.Provider
	}
	return errors.NewUpstreamUnavailableError(provider, op, err)
}
