package domain

import "time"

// Side identifies the taker direction of an order or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// PriceLevel is a single price+size entry in an orderbook ladder.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids and asks for a market.
// Bids are sorted descending by price, asks ascending; either side may be
// empty when there is no resting liquidity.
type OrderbookSnapshot struct {
	Market    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	BestBid   float64
	BestAsk   float64
	MidPrice  float64
	Timestamp time.Time
}

// PriceChange is an incremental orderbook level update.
type PriceChange struct {
	Market    string
	Side      Side
	Price     float64
	Size      float64 // 0 means remove level
	Timestamp time.Time
}

// LastTrade is the most recent executed trade for a market, side already
// normalized to the taker's perspective.
type LastTrade struct {
	Market    string
	Price     float64
	Size      float64
	Side      Side
	Timestamp time.Time
}
