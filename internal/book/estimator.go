// Package book derives display-only price figures from live orderbook
// snapshots: estimated market-order fill prices, protective limit prices,
// slippage versus mid, and a synthetic mark price.
package book

import (
	"math"
	"sort"

	"github.com/dexlens/dexlens/internal/domain"
)

const (
	// buyBuffer and sellBuffer pad the marginal fill price when deriving a
	// worst-acceptable price for a marketable limit order.
	buyBuffer  = 1.05
	sellBuffer = 0.95
)

// EstimatedFillPrice walks the opposing ladder from the best price,
// accumulating size, and returns the price of the level at which the
// cumulative size first covers the requested size. This is the marginal
// price of the last level touched, not a size-weighted average.
//
// Returns domain.ErrInsufficientLiquidity when the visible ladder depth
// cannot cover size, and domain.ErrInvalidSide for an unknown side.
func EstimatedFillPrice(snap domain.OrderbookSnapshot, size float64, side domain.Side) (float64, error) {
	var ladder []domain.PriceLevel
	switch side {
	case domain.SideBuy:
		ladder = snap.Asks
	case domain.SideSell:
		ladder = snap.Bids
	default:
		return 0, domain.ErrInvalidSide
	}

	var acc float64
	for _, lvl := range ladder {
		acc += lvl.Size
		if acc >= size {
			return lvl.Price, nil
		}
	}
	return 0, domain.ErrInsufficientLiquidity
}

// LimitPriceWithBuffer returns the estimated fill price adjusted by a fixed
// protective buffer: 5% above for buys, 5% below for sells. Used as the
// worst-acceptable-price guard on a marketable limit order.
func LimitPriceWithBuffer(snap domain.OrderbookSnapshot, size float64, side domain.Side) (float64, error) {
	price, err := EstimatedFillPrice(snap, size, side)
	if err != nil {
		return 0, err
	}
	if side == domain.SideBuy {
		return price * buyBuffer, nil
	}
	return price * sellBuffer, nil
}

// SlippagePercent computes the percentage deviation of the estimated fill
// price from a reference price. The reference is the midpoint of the BBO when
// both sides are present, otherwise fallbackRef (typically the mark price).
// A zero size means no trade and therefore zero slippage; the ladder is not
// consulted. domain.ErrInsufficientLiquidity propagates from the fill
// estimate and callers are expected to treat it as "unknown slippage".
func SlippagePercent(snap domain.OrderbookSnapshot, size float64, side domain.Side, fallbackRef float64) (float64, error) {
	if size == 0 {
		return 0, nil
	}

	ref := fallbackRef
	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		ref = (snap.Bids[0].Price + snap.Asks[0].Price) / 2
	}

	fill, err := EstimatedFillPrice(snap, size, side)
	if err != nil {
		return 0, err
	}
	return math.Abs(fill-ref) / ref * 100, nil
}

// MarkPrice derives a synthetic reference price from up to three candidates:
// the best bid, the best ask, and the most recent trade price. Present
// candidates are sorted ascending and the element at index floor(n/2) is
// returned; with exactly two candidates this selects the upper of the pair.
// The second return is false when no candidate exists, a valid "unknown
// price" state rather than an error.
func MarkPrice(snap domain.OrderbookSnapshot, lastTrade *domain.LastTrade) (float64, bool) {
	candidates := make([]float64, 0, 3)
	if len(snap.Bids) > 0 {
		candidates = append(candidates, snap.Bids[0].Price)
	}
	if len(snap.Asks) > 0 {
		candidates = append(candidates, snap.Asks[0].Price)
	}
	if lastTrade != nil {
		candidates = append(candidates, lastTrade.Price)
	}
	if len(candidates) == 0 {
		return 0, false
	}
	sort.Float64s(candidates)
	return candidates[len(candidates)/2], true
}
