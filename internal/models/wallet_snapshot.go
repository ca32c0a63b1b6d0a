package models

import (
	"time"

	"github.com/wallet-insight/internal/types"
)

// WalletSnapshot is the cached valuation of one wallet on one chain. It is
// keyed by (Address, Chain) and replaced wholesale on every recomputation.
type WalletSnapshot struct {
	Address            string           `json:"address"`
	Chain              types.ChainID    `json:"chain"`
	NativeSymbol       string           `json:"nativeSymbol"`
	NativePriceUSD     float64          `json:"nativePriceUSD"`
	NativeBalance      float64          `json:"nativeBalance"`
	NativeBalanceUSD   float64          `json:"nativeBalanceUSD"`
	NetWorthUSD        float64          `json:"netWorthUSD"`
	NetWorthNative     float64          `json:"netWorthNative"`
	TotalGasPaidNative float64          `json:"totalGasPaidNative"`
	TotalGasPaidUSD    float64          `json:"totalGasPaidUSD"`
	SpamTokenCount     int              `json:"spamTokenCount"`
	Tokens             []TokenHolding   `json:"tokens"`
	Insights           []Insight        `json:"insights"`
	Degraded           []DegradedFigure `json:"degraded,omitempty"`
	LastUpdated        time.Time        `json:"lastUpdated"`
}

// TokenHolding is one valued token position inside a snapshot
type TokenHolding struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name,omitempty"`
	TokenAddress string  `json:"tokenAddress"`
	Balance      float64 `json:"balance"`
	Price        float64 `json:"price"`
	ValueUSD     float64 `json:"valueUSD"`
}

// InsightType is the display severity of an insight
type InsightType string

const (
	InsightSuccess InsightType = "success"
	InsightInfo    InsightType = "info"
	InsightWarning InsightType = "warning"
)

// Insight is a short observation derived from a snapshot
type Insight struct {
	Title   string      `json:"title"`
	Type    InsightType `json:"type"`
	Message string      `json:"message"`
}

// Figure names used in DegradedFigure
const (
	FigureSpotPrices   = "spotPrices"
	FigureGasPaid      = "totalGasPaid"
	FigureTransfers    = "transferHistory"
	FigureSnapshotSave = "snapshotSave"
)

// DegradedFigure records a figure that fell back to zero after an upstream
// failure
type DegradedFigure struct {
	Figure string `json:"figure"`
	Reason string `json:"reason,omitempty"`
}

// IsFresh reports whether the snapshot is younger than window at now.
// A snapshot whose age equals the window is stale.
func (s *WalletSnapshot) IsFresh(now time.Time, window time.Duration) bool {
	if s == nil || s.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdated) < window
}

// Degrade records f under name when it is unavailable
func (s *WalletSnapshot) Degrade(name string, f types.Figure) {
	if !f.Degraded() {
		return
	}
	s.Degraded = append(s.Degraded, DegradedFigure{Figure: name, Reason: f.Reason})
}

// SnapshotHistoryEntry is one archived valuation, listed newest first
type SnapshotHistoryEntry struct {
	Address        string        `json:"address" ch:"address"`
	Chain          types.ChainID `json:"chain" ch:"chain"`
	NetWorthUSD    float64       `json:"netWorthUSD" ch:"net_worth_usd"`
	NetWorthNative float64       `json:"netWorthNative" ch:"net_worth_native"`
	NativePriceUSD float64       `json:"nativePriceUSD" ch:"native_price_usd"`
	GasPaidNative  float64       `json:"totalGasPaidNative" ch:"gas_paid_native"`
	TokenCount     uint32        `json:"tokenCount" ch:"token_count"`
	SpamTokenCount uint32        `json:"spamTokenCount" ch:"spam_token_count"`
	RecordedAt     time.Time     `json:"recordedAt" ch:"recorded_at"`
}

// HistoryEntryFromSnapshot flattens a snapshot into an archive row
func HistoryEntryFromSnapshot(s *WalletSnapshot) SnapshotHistoryEntry {
	return SnapshotHistoryEntry{
		Address:        types.NormalizeAddress(s.Address),
		Chain:          s.Chain,
		NetWorthUSD:    s.NetWorthUSD,
		NetWorthNative: s.NetWorthNative,
		NativePriceUSD: s.NativePriceUSD,
		GasPaidNative:  s.TotalGasPaidNative,
		TokenCount:     uint32(len(s.Tokens)),
		SpamTokenCount: uint32(s.SpamTokenCount),
		RecordedAt:     s.LastUpdated,
	}
}
