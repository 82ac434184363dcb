// Package dexapi is the client layer for the exchange's public data API. It
// covers the REST endpoints (markets, historical stats, recent fills) and the
// WebSocket market-data feed, and converts API DTOs to domain types.
package dexapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
)

// flexFloat unmarshals from a JSON number or a numeric string. The exchange
// API sends prices and sizes as strings on some endpoints and numbers on
// others.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the exchange's markets
// endpoint.
type APIMarket struct {
	Name        string    `json:"name"`
	BaseSymbol  string    `json:"baseSymbol"`
	QuoteSymbol string    `json:"quoteSymbol"`
	Kind        string    `json:"kind"` // "perp" or "spot"
	Address     string    `json:"address"`
	TickSize    flexFloat `json:"tickSize"`
	LotSize     flexFloat `json:"lotSize"`
	TakerFeeBps flexFloat `json:"takerFeeBps"`
	Status      string    `json:"status"` // "active", "paused", "delisted"
}

// ToDomainMarket converts an APIMarket to a domain.Market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		Name:        m.Name,
		BaseSymbol:  m.BaseSymbol,
		QuoteSymbol: m.QuoteSymbol,
		Address:     m.Address,
		TickSize:    float64(m.TickSize),
		LotSize:     float64(m.LotSize),
		TakerFeeBps: float64(m.TakerFeeBps),
		Active:      strings.EqualFold(m.Status, "active"),
	}

	switch strings.ToLower(m.Kind) {
	case "spot":
		dm.Kind = domain.MarketSpot
	default:
		dm.Kind = domain.MarketPerp
	}

	return dm
}

// APIStatPoint is one hourly sample from the historical stats endpoint.
// Cumulative metrics (fees) report the running total at that hour; the rest
// are per-hour values.
type APIStatPoint struct {
	Timestamp int64     `json:"timestamp"` // unix millis
	Value     flexFloat `json:"value"`
}

// ToDomainStat converts an APIStatPoint to a domain.StatRecord for the given
// market and metric.
func (p *APIStatPoint) ToDomainStat(market, metric string) domain.StatRecord {
	return domain.StatRecord{
		Market:    market,
		Metric:    metric,
		Timestamp: time.UnixMilli(p.Timestamp).UTC(),
		Value:     float64(p.Value),
	}
}

// APITrade is a fill as returned by the recent-trades endpoint.
type APITrade struct {
	ID        string    `json:"id"`
	Market    string    `json:"market"`
	Price     flexFloat `json:"price"`
	Size      flexFloat `json:"size"`
	Side      string    `json:"side"` // "buy" or "sell"
	OrderID   string    `json:"orderId"`
	Timestamp int64     `json:"timestamp"` // unix millis
}

// ToDomainTrade converts an APITrade to a domain.Trade. The store assigns
// its own row ID; the exchange's trade ID is not persisted.
func (t *APITrade) ToDomainTrade() domain.Trade {
	return domain.Trade{
		Market:    t.Market,
		Price:     float64(t.Price),
		Size:      float64(t.Size),
		Side:      domain.Side(strings.ToLower(t.Side)),
		OrderID:   t.OrderID,
		Timestamp: time.UnixMilli(t.Timestamp).UTC(),
	}
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to the WebSocket to subscribe or
// unsubscribe.
type WSCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Markets []string `json:"markets,omitempty"`
}

// BookMessage is a full orderbook snapshot delivered over WebSocket.
type BookMessage struct {
	Market    string        `json:"market"`
	Bids      []WSBookLevel `json:"bids"`
	Asks      []WSBookLevel `json:"asks"`
	Timestamp string        `json:"timestamp"`
}

// WSBookLevel is a single bid/ask level in the WebSocket orderbook data.
type WSBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// LevelMessage is an incremental price-level update. Size "0" removes the
// level.
type LevelMessage struct {
	Market    string `json:"market"`
	Side      string `json:"side"` // "buy" or "sell"
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// TradeMessage is a fill broadcast on the trade channel.
type TradeMessage struct {
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// --------------------------------------------------------------------------
// Conversion helpers: WS messages -> domain types
// --------------------------------------------------------------------------

func parseWSTimestamp(raw string) time.Time {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now().UTC()
}

// BookToDomainSnapshot converts a BookMessage to a domain.OrderbookSnapshot,
// deriving best bid, best ask, and mid price from the ladders.
func BookToDomainSnapshot(b *BookMessage) domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		Market: b.Market,
	}

	for _, lvl := range b.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: p, Size: s})
		if p > snap.BestBid {
			snap.BestBid = p
		}
	}
	for _, lvl := range b.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: p, Size: s})
		if snap.BestAsk == 0 || p < snap.BestAsk {
			snap.BestAsk = p
		}
	}

	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	}

	snap.Timestamp = parseWSTimestamp(b.Timestamp)
	return snap
}

// LevelToDomain converts a LevelMessage to a domain.PriceChange.
func LevelToDomain(m *LevelMessage) domain.PriceChange {
	pc := domain.PriceChange{
		Market: m.Market,
		Side:   domain.Side(strings.ToLower(m.Side)),
	}
	pc.Price, _ = strconv.ParseFloat(m.Price, 64)
	pc.Size, _ = strconv.ParseFloat(m.Size, 64)
	pc.Timestamp = parseWSTimestamp(m.Timestamp)
	return pc
}

// TradeToDomain converts a TradeMessage to a domain.LastTrade.
func TradeToDomain(m *TradeMessage) domain.LastTrade {
	lt := domain.LastTrade{
		Market: m.Market,
		Side:   domain.Side(strings.ToLower(m.Side)),
	}
	lt.Price, _ = strconv.ParseFloat(m.Price, 64)
	lt.Size, _ = strconv.ParseFloat(m.Size, 64)
	lt.Timestamp = parseWSTimestamp(m.Timestamp)
	return lt
}
