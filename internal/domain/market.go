package domain

import "time"

// MarketKind distinguishes perpetual and spot markets.
type MarketKind string

const (
	MarketPerp MarketKind = "perp"
	MarketSpot MarketKind = "spot"
)

// Market is the metadata for a single tradable market on the exchange.
type Market struct {
	Name        string // e.g. "BTC-PERP"
	BaseSymbol  string
	QuoteSymbol string
	Kind        MarketKind
	Address     string // on-chain market account address
	TickSize    float64
	LotSize     float64
	TakerFeeBps float64
	Active      bool
	UpdatedAt   time.Time
}
