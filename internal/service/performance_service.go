package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wallet-insight/internal/adapter"
	"github.com/wallet-insight/internal/costbasis"
	"github.com/wallet-insight/internal/errors"
	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/metrics"
	"github.com/wallet-insight/internal/models"
	"github.com/wallet-insight/internal/price"
	"github.com/wallet-insight/internal/spam"
	"github.com/wallet-insight/internal/types"
)

// PerformanceServiceConfig holds performance policy
type PerformanceServiceConfig struct {
	TopN            int // Valid tokens analysed, in arrival order
	TransferWindow  int // Most recent transfers fetched across all tokens
	MaxSymbolLength int
}

// PerformanceService computes per-asset realized and unrealized P&L
type PerformanceService struct {
	chainData      adapter.ChainDataProvider
	oracle         price.Oracle
	classifier     *spam.Classifier
	topN           int
	transferWindow int
	logger         *logging.Logger
}

// NewPerformanceService creates a new portfolio performance service
func NewPerformanceService(chainData adapter.ChainDataProvider, oracle price.Oracle, cfg PerformanceServiceConfig, logger *logging.Logger) *PerformanceService {
	if cfg.TopN <= 0 {
		cfg.TopN = 6
	}
	if cfg.TransferWindow <= 0 {
		cfg.TransferWindow = 100
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PerformanceService{
		chainData:      chainData,
		oracle:         oracle,
		classifier:     spam.NewClassifier(cfg.MaxSymbolLength),
		topN:           cfg.TopN,
		transferWindow: cfg.TransferWindow,
		logger:         logger,
	}
}

// GetPerformance returns P&L for the wallet's top valid tokens, sorted by
// current value descending
func (s *PerformanceService) GetPerformance(ctx context.Context, address string, chain types.ChainID) (*models.PerformanceReport, error) {
	address = types.NormalizeAddress(address)
	spec, ok := types.LookupChain(chain)
	if !ok {
		return nil, errors.NewUnsupportedChainError(string(chain))
	}
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"address": address,
		"chain":   chain,
	})
	start := time.Now()

	var (
		tokens      []types.TokenBalance
		transfers   []types.TokenTransfer
		transferErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tokens, err = s.chainData.GetTokenBalances(gctx, address, spec.ID, false)
		if err != nil {
			return upstreamError("GetTokenBalances", err)
		}
		return nil
	})
	g.Go(func() error {
		transfers, transferErr = s.chainData.GetTokenTransfers(gctx, address, spec.ID, s.transferWindow)
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	report := &models.PerformanceReport{
		Address: address,
		Chain:   string(spec.ID),
		Assets:  []models.AssetPerformance{},
	}

	if transferErr != nil {
		s.degrade(report, models.FigureTransfers, types.Unavailable(transferErr), logger)
		transfers = nil
	}
	byToken := make(map[string][]types.TokenTransfer)
	for _, tr := range transfers {
		key := types.NormalizeAddress(tr.TokenAddress)
		byToken[key] = append(byToken[key], tr)
	}

	valid := s.classifier.Classify(tokens).Valid
	if len(valid) > s.topN {
		valid = valid[:s.topN]
	}

	symbols := make([]string, 0, len(valid))
	for _, tok := range valid {
		symbols = append(symbols, tok.Symbol)
	}
	prices := map[string]float64{}
	if len(symbols) > 0 {
		p, err := s.oracle.GetSpotPrices(ctx, symbols)
		if err != nil {
			s.degrade(report, models.FigureSpotPrices, types.Unavailable(err), logger)
		} else {
			prices = p
		}
	}

	memo := price.NewHistoricalCache()
	for _, tok := range valid {
		asset, err := s.analyse(ctx, address, tok, byToken[types.NormalizeAddress(tok.TokenAddress)], prices, memo)
		if err != nil {
			return nil, err
		}
		report.Assets = append(report.Assets, asset)
	}

	report.Stats = summarize(report.Assets)
	sort.SliceStable(report.Assets, func(i, j int) bool {
		return report.Assets[i].CurrentValueUSD > report.Assets[j].CurrentValueUSD
	})

	logger.WithFields(map[string]interface{}{
		"assets":           len(report.Assets),
		"transfers":        len(transfers),
		"historicalLookup": memo.Len(),
		"memoHits":         memo.Hits(),
		"duration":         time.Since(start).String(),
	}).Info("Computed portfolio performance")

	return report, nil
}

func (s *PerformanceService) analyse(
	ctx context.Context,
	address string,
	tok types.TokenBalance,
	transfers []types.TokenTransfer,
	prices map[string]float64,
	memo *price.HistoricalCache,
) (models.AssetPerformance, error) {
	lookup := func(ctx context.Context, at time.Time) (float64, error) {
		return s.oracle.GetHistoricalPrice(ctx, tok.Symbol, at.Unix(), memo)
	}
	fifo, err := costbasis.Run(ctx, address, transfers, lookup)
	if err != nil {
		return models.AssetPerformance{}, err
	}

	balance, err := tok.Amount()
	if err != nil {
		s.logger.WithField("token", tok.TokenAddress).WithError(err).Warn("Unparsable token balance, treating as 0")
		balance = decimal.Zero
	}
	current := decimal.NewFromFloat(prices[strings.ToUpper(tok.Symbol)])
	avgBuy := decimal.NewFromFloat(fifo.AvgBuyPrice)

	currentValue := balance.Mul(current)
	costBasis := balance.Mul(avgBuy)
	unrealized := currentValue.Sub(costBasis)
	unrealizedPct := decimal.Zero
	if !costBasis.IsZero() {
		unrealizedPct = unrealized.Div(costBasis).Mul(decimal.NewFromInt(100))
	}
	realized := decimal.NewFromFloat(fifo.RealizedPLUSD)

	return models.AssetPerformance{
		Symbol:                 tok.Symbol,
		Name:                   tok.Name,
		TokenAddress:           tok.TokenAddress,
		Balance:                balance.InexactFloat64(),
		CurrentPrice:           current.InexactFloat64(),
		AvgBuyPrice:            fifo.AvgBuyPrice,
		CurrentValueUSD:        currentValue.InexactFloat64(),
		UnrealizedPLUSD:        unrealized.InexactFloat64(),
		UnrealizedPLPercentage: unrealizedPct.InexactFloat64(),
		RealizedPLUSD:          fifo.RealizedPLUSD,
		IsProfitable:           !unrealized.Add(realized).IsNegative(),
		UnpricedEvents:         fifo.UnpricedEvents,
		UnmatchedSellQuantity:  fifo.UnmatchedSellQuantity,
	}, nil
}

// summarize computes the report stats over assets in arrival order, so the
// first asset wins a tie for best performer
func summarize(assets []models.AssetPerformance) models.PerformanceStats {
	stats := models.PerformanceStats{BestPerformer: models.BestPerformerNone}
	if len(assets) == 0 {
		return stats
	}

	profitable := 0
	best := -1
	for i, a := range assets {
		stats.TotalRealizedPL += a.RealizedPLUSD
		stats.TotalUnrealizedPL += a.UnrealizedPLUSD
		if a.IsProfitable {
			profitable++
		}
		if best < 0 || a.TotalPLUSD() > assets[best].TotalPLUSD() {
			best = i
		}
	}

	stats.WinRate = float64(profitable) / float64(len(assets)) * 100
	stats.BestPerformer = assets[best].Symbol
	stats.BestPerformerValue = assets[best].TotalPLUSD()
	return stats
}

func (s *PerformanceService) degrade(report *models.PerformanceReport, name string, f types.Figure, logger *logging.Logger) {
	report.Degraded = append(report.Degraded, models.DegradedFigure{Figure: name, Reason: f.Reason})
	metrics.DegradedFigures.WithLabelValues(name).Inc()
	logger.WithField("figure", name).WithField("reason", f.Reason).Warn("Figure unavailable, defaulting to 0")
}
