package models

// AssetPerformance is the derived P&L of one held token. It is never
// persisted.
type AssetPerformance struct {
	Symbol                 string  `json:"symbol"`
	Name                   string  `json:"name"`
	TokenAddress           string  `json:"tokenAddress"`
	Balance                float64 `json:"balance"`
	CurrentPrice           float64 `json:"currentPrice"`
	AvgBuyPrice            float64 `json:"avgBuyPrice"`
	CurrentValueUSD        float64 `json:"currentValueUSD"`
	UnrealizedPLUSD        float64 `json:"unrealizedPLUSD"`
	UnrealizedPLPercentage float64 `json:"unrealizedPLPercentage"`
	RealizedPLUSD          float64 `json:"realizedPLUSD"`
	IsProfitable           bool    `json:"isProfitable"`
	UnpricedEvents         int     `json:"unpricedEvents,omitempty"`
	UnmatchedSellQuantity  float64 `json:"unmatchedSellQuantity,omitempty"`
}

// TotalPLUSD is realized plus unrealized P&L
func (a AssetPerformance) TotalPLUSD() float64 {
	return a.UnrealizedPLUSD + a.RealizedPLUSD
}

// BestPerformerNone is reported when there are no assets
const BestPerformerNone = "N/A"

// PerformanceStats aggregates a PerformanceReport
type PerformanceStats struct {
	TotalRealizedPL    float64 `json:"totalRealizedPL"`
	TotalUnrealizedPL  float64 `json:"totalUnrealizedPL"`
	WinRate            float64 `json:"winRate"`
	BestPerformer      string  `json:"bestPerformer"`
	BestPerformerValue float64 `json:"bestPerformerValue"`
}

// PerformanceReport is the response of the performance service
type PerformanceReport struct {
	Address  string             `json:"address"`
	Chain    string             `json:"chain"`
	Assets   []AssetPerformance `json:"assets"`
	Stats    PerformanceStats   `json:"stats"`
	Degraded []DegradedFigure   `json:"degraded,omitempty"`
}
