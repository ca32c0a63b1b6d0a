// Package costbasis computes realized profit/loss and remaining average cost
// for one asset by matching sells against buy lots first-in-first-out.
package costbasis

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/wallet-insight/internal/logging"
	"github.com/wallet-insight/internal/types"
)

// quantityEpsilon absorbs float residue when a lot is drained exactly.
const quantityEpsilon = 1e-12

// Side is the direction of an event relative to the wallet
type Side string

const (
	// Buy means the wallet received the asset
	Buy Side = "BUY"
	// Sell means the wallet sent the asset
	Sell Side = "SELL"
)

// Event is a priced inflow or outflow of one asset
type Event struct {
	Side         Side
	Quantity     float64
	UnitPriceUSD float64
	Timestamp    time.Time
	Priced       bool
}

// Lot is inventory acquired by one buy and not yet sold
type Lot struct {
	Quantity    float64   `json:"quantity"`
	UnitCostUSD float64   `json:"unitCostUsd"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}

// Result is the outcome of a FIFO run
type Result struct {
	RealizedPLUSD     float64 `json:"realizedPlUsd"`
	AvgBuyPrice       float64 `json:"avgBuyPrice"`
	RemainingQuantity float64 `json:"remainingQuantity"`
	Lots              []Lot   `json:"lots"`

	BoughtQuantity      float64 `json:"boughtQuantity"`
	MatchedSellQuantity float64 `json:"matchedSellQuantity"`
	// UnmatchedSellQuantity is sold quantity with no tracked lot to match,
	// usually inventory acquired before the transfer window. It is excluded
	// from realized P/L.
	UnmatchedSellQuantity float64 `json:"unmatchedSellQuantity"`
	// UnpricedEvents counts events whose historical price could not be
	// resolved and were valued at 0.
	UnpricedEvents int `json:"unpricedEvents"`
	SkippedEvents  int `json:"skippedEvents"`
}

// PriceLookup resolves the USD unit price of the asset at a point in time
type PriceLookup func(ctx context.Context, at time.Time) (float64, error)

// Match runs the lot queue over events. Events are stably sorted by
// timestamp first, so equal timestamps keep their input order.
func Match(events []Event) Result {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	var res Result
	var lots []Lot

	for _, ev := range ordered {
		if ev.Quantity <= 0 {
			continue
		}
		if !ev.Priced {
			res.UnpricedEvents++
		}

		switch ev.Side {
		case Buy:
			res.BoughtQuantity += ev.Quantity
			lots = append(lots, Lot{Quantity: ev.Quantity, UnitCostUSD: ev.UnitPriceUSD, AcquiredAt: ev.Timestamp})

		case Sell:
			remaining := ev.Quantity
			for remaining > quantityEpsilon && len(lots) > 0 {
				lot := &lots[0]

				consumed := lot.Quantity
				if consumed > remaining {
					consumed = remaining
				}

				res.RealizedPLUSD += (ev.UnitPriceUSD - lot.UnitCostUSD) * consumed
				res.MatchedSellQuantity += consumed
				lot.Quantity -= consumed
				remaining -= consumed

				if lot.Quantity <= quantityEpsilon {
					lots = lots[1:]
				}
			}
			if remaining > quantityEpsilon {
				res.UnmatchedSellQuantity += remaining
			}
		}
	}

	var qty, cost float64
	for _, lot := range lots {
		qty += lot.Quantity
		cost += lot.Quantity * lot.UnitCostUSD
	}
	if qty > 0 {
		res.AvgBuyPrice = cost / qty
	}
	res.RemainingQuantity = qty
	res.Lots = append([]Lot(nil), lots...)

	return res
}

// Run classifies transfers for wallet, resolves one historical price per
// relevant transfer through lookup, and matches lots. Lookup failures value
// the event at 0 and are counted in UnpricedEvents. Only cancellation of ctx
// aborts the run.
func Run(ctx context.Context, wallet string, transfers []types.TokenTransfer, lookup PriceLookup) (Result, error) {
	ordered := make([]types.TokenTransfer, len(transfers))
	copy(ordered, transfers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	logger := logging.FromContext(ctx)
	events := make([]Event, 0, len(ordered))
	skipped := 0

	for _, tr := range ordered {
		side, ok := classify(wallet, tr)
		if !ok {
			skipped++
			continue
		}

		amount, err := tr.Amount()
		if err != nil {
			logger.WithField("txHash", tr.TxHash).WithError(err).Warn("Skipping transfer with unparsable value")
			skipped++
			continue
		}

		ev := Event{
			Side:      side,
			Quantity:  amount.InexactFloat64(),
			Timestamp: tr.Timestamp,
			Priced:    true,
		}

		price, err := lookup(ctx, tr.Timestamp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return Result{}, ctxErr
			}
			ev.Priced = false
			price = 0
		}
		ev.UnitPriceUSD = price

		events = append(events, ev)
	}

	res := Match(events)
	res.SkippedEvents = skipped

	if res.UnmatchedSellQuantity > 0 {
		logger.WithFields(map[string]interface{}{
			"wallet":    wallet,
			"unmatched": res.UnmatchedSellQuantity,
		}).Warn("Sell quantity exceeds tracked inventory; excess excluded from realized P/L")
	}
	if res.UnpricedEvents > 0 {
		logger.WithField("unpriced", res.UnpricedEvents).Warn("Historical prices unavailable; events valued at 0")
	}

	return res, nil
}

func classify(wallet string, tr types.TokenTransfer) (Side, bool) {
	in := types.SameAddress(tr.To, wallet)
	out := types.SameAddress(tr.From, wallet)
	switch {
	case in && out:
		return "", false
	case in:
		return Buy, true
	case out:
		return Sell, true
	default:
		return "", false
	}
}
