package costbasis

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-insight/internal/types"
)

const (
	wallet = "0x00000000000000000000000000000000000000aa"
	dex    = "0x00000000000000000000000000000000000000bb"
	token  = "0x00000000000000000000000000000000000000cc"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return t0.Add(time.Duration(minutes) * time.Minute) }

// units encodes a whole-token quantity with 18 decimals
func units(n int64) string {
	v := new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	return v.String()
}

func buy(n int64, minute int) types.TokenTransfer {
	return types.TokenTransfer{TokenAddress: token, From: dex, To: wallet, RawValue: units(n), Decimals: 18, Timestamp: at(minute)}
}

func sell(n int64, minute int) types.TokenTransfer {
	return types.TokenTransfer{TokenAddress: token, From: wallet, To: dex, RawValue: units(n), Decimals: 18, Timestamp: at(minute)}
}

// pricesAt returns a lookup serving a fixed price per minute offset
func pricesAt(prices map[int]float64) PriceLookup {
	return func(ctx context.Context, ts time.Time) (float64, error) {
		p, ok := prices[int(ts.Sub(t0)/time.Minute)]
		if !ok {
			return 0, errors.New("no price")
		}
		return p, nil
	}
}

func TestRunZeroTransfers(t *testing.T) {
	res, err := Run(context.Background(), wallet, nil, pricesAt(nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.RealizedPLUSD)
	assert.Equal(t, 0.0, res.AvgBuyPrice)
	assert.Empty(t, res.Lots)
}

func TestRunSingleBuyPartialSell(t *testing.T) {
	res, err := Run(context.Background(), wallet,
		[]types.TokenTransfer{sell(4, 1), buy(10, 0)},
		pricesAt(map[int]float64{0: 1, 1: 3}))
	require.NoError(t, err)

	assert.InDelta(t, 8.0, res.RealizedPLUSD, 1e-9)
	assert.InDelta(t, 1.0, res.AvgBuyPrice, 1e-9)
	require.Len(t, res.Lots, 1)
	assert.InDelta(t, 6.0, res.Lots[0].Quantity, 1e-9)
	assert.Zero(t, res.UnmatchedSellQuantity)
}

func TestRunTwoBuysFIFOOrder(t *testing.T) {
	res, err := Run(context.Background(), wallet,
		[]types.TokenTransfer{buy(5, 0), buy(5, 1), sell(7, 2)},
		pricesAt(map[int]float64{0: 1, 1: 2, 2: 4}))
	require.NoError(t, err)

	assert.InDelta(t, 19.0, res.RealizedPLUSD, 1e-9)
	assert.InDelta(t, 2.0, res.AvgBuyPrice, 1e-9)
	assert.InDelta(t, 3.0, res.RemainingQuantity, 1e-9)
}

func TestRunSellExceedingInventory(t *testing.T) {
	res, err := Run(context.Background(), wallet,
		[]types.TokenTransfer{buy(2, 0), sell(5, 1)},
		pricesAt(map[int]float64{0: 1, 1: 2}))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.RealizedPLUSD, 1e-9)
	assert.InDelta(t, 3.0, res.UnmatchedSellQuantity, 1e-9)
	assert.Equal(t, 0.0, res.AvgBuyPrice)
	assert.Empty(t, res.Lots)
}

func TestRunHistoricalPriceFailureValuedAtZero(t *testing.T) {
	res, err := Run(context.Background(), wallet,
		[]types.TokenTransfer{buy(10, 0), sell(4, 1)},
		pricesAt(map[int]float64{1: 3}))
	require.NoError(t, err)

	assert.Equal(t, 1, res.UnpricedEvents)
	assert.InDelta(t, 12.0, res.RealizedPLUSD, 1e-9)
	assert.Equal(t, 0.0, res.AvgBuyPrice)
}

func TestRunSkipsSelfAndUnrelatedTransfers(t *testing.T) {
	calls := 0
	lookup := func(ctx context.Context, ts time.Time) (float64, error) {
		calls++
		return 1, nil
	}
	self := types.TokenTransfer{From: wallet, To: "0x00000000000000000000000000000000000000AA", RawValue: units(1), Decimals: 18, Timestamp: at(0)}
	other := types.TokenTransfer{From: dex, To: token, RawValue: units(1), Decimals: 18, Timestamp: at(1)}

	res, err := Run(context.Background(), wallet, []types.TokenTransfer{self, other, buy(1, 2)}, lookup)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SkippedEvents)
	assert.Equal(t, 1, calls)
	assert.InDelta(t, 1.0, res.RemainingQuantity, 1e-9)
}

func TestRunAddressComparisonIsCaseInsensitive(t *testing.T) {
	tr := buy(3, 0)
	tr.To = "0x00000000000000000000000000000000000000AA"
	res, err := Run(context.Background(), wallet, []types.TokenTransfer{tr}, pricesAt(map[int]float64{0: 2}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, res.AvgBuyPrice, 1e-9)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lookup := func(ctx context.Context, ts time.Time) (float64, error) { return 0, ctx.Err() }

	_, err := Run(ctx, wallet, []types.TokenTransfer{buy(1, 0)}, lookup)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchEqualTimestampsKeepInputOrder(t *testing.T) {
	same := at(0)
	sellFirst := Match([]Event{
		{Side: Sell, Quantity: 1, UnitPriceUSD: 5, Timestamp: same, Priced: true},
		{Side: Buy, Quantity: 1, UnitPriceUSD: 1, Timestamp: same, Priced: true},
	})
	assert.InDelta(t, 1.0, sellFirst.UnmatchedSellQuantity, 1e-12)
	assert.Zero(t, sellFirst.RealizedPLUSD)

	buyFirst := Match([]Event{
		{Side: Buy, Quantity: 1, UnitPriceUSD: 1, Timestamp: same, Priced: true},
		{Side: Sell, Quantity: 1, UnitPriceUSD: 5, Timestamp: same, Priced: true},
	})
	assert.InDelta(t, 4.0, buyFirst.RealizedPLUSD, 1e-12)
}

func TestMatchPartialLotKeepsOriginalCost(t *testing.T) {
	res := Match([]Event{
		{Side: Buy, Quantity: 10, UnitPriceUSD: 3, Timestamp: at(0), Priced: true},
		{Side: Buy, Quantity: 10, UnitPriceUSD: 5, Timestamp: at(1), Priced: true},
		{Side: Sell, Quantity: 12, UnitPriceUSD: 4, Timestamp: at(2), Priced: true},
	})
	require.Len(t, res.Lots, 1)
	assert.InDelta(t, 8.0, res.Lots[0].Quantity, 1e-9)
	assert.Equal(t, 5.0, res.Lots[0].UnitCostUSD)
	assert.InDelta(t, 10.0*1-2.0*1, res.RealizedPLUSD, 1e-9)
}
