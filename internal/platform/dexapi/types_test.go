package dexapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/domain"
)

func TestFlexFloat(t *testing.T) {
	var f flexFloat

	require.NoError(t, json.Unmarshal([]byte(`42.5`), &f))
	assert.Equal(t, 42.5, float64(f))

	require.NoError(t, json.Unmarshal([]byte(`"0.001"`), &f))
	assert.Equal(t, 0.001, float64(f))

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
	assert.Error(t, json.Unmarshal([]byte(`true`), &f))
}

func TestAPIMarketToDomain(t *testing.T) {
	raw := `{
		"name": "BTC-PERP",
		"baseSymbol": "BTC",
		"quoteSymbol": "USD",
		"kind": "perp",
		"tickSize": "0.5",
		"lotSize": 0.001,
		"takerFeeBps": "7",
		"status": "ACTIVE"
	}`
	var m APIMarket
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	dm := m.ToDomainMarket()
	assert.Equal(t, "BTC-PERP", dm.Name)
	assert.Equal(t, domain.MarketPerp, dm.Kind)
	assert.Equal(t, 0.5, dm.TickSize)
	assert.Equal(t, 0.001, dm.LotSize)
	assert.Equal(t, 7.0, dm.TakerFeeBps)
	assert.True(t, dm.Active)
}

func TestAPIMarketInactiveStatuses(t *testing.T) {
	for _, status := range []string{"paused", "delisted", ""} {
		m := APIMarket{Name: "X", Status: status}
		assert.False(t, m.ToDomainMarket().Active, "status %q", status)
	}
}

func TestAPIStatPointToDomain(t *testing.T) {
	p := APIStatPoint{Timestamp: 1756555200000, Value: 123.45}
	rec := p.ToDomainStat("BTC-PERP", domain.MetricFees)

	assert.Equal(t, "BTC-PERP", rec.Market)
	assert.Equal(t, domain.MetricFees, rec.Metric)
	assert.Equal(t, time.UnixMilli(1756555200000).UTC(), rec.Timestamp)
	assert.Equal(t, 123.45, rec.Value)
}

func TestParseWSTimestamp(t *testing.T) {
	// unix millis
	got := parseWSTimestamp("1756555200000")
	assert.Equal(t, time.UnixMilli(1756555200000).UTC(), got)

	// RFC3339
	got = parseWSTimestamp("2026-08-30T12:00:00Z")
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), got)

	// garbage falls back to now
	got = parseWSTimestamp("whenever")
	assert.WithinDuration(t, time.Now().UTC(), got, 5*time.Second)
}

func TestBookToDomainSnapshot(t *testing.T) {
	msg := &BookMessage{
		Market: "BTC-PERP",
		Bids: []WSBookLevel{
			{Price: "99", Size: "2"},
			{Price: "98.5", Size: "5"},
		},
		Asks: []WSBookLevel{
			{Price: "101", Size: "1"},
			{Price: "102", Size: "4"},
		},
		Timestamp: "1756555200000",
	}

	snap := BookToDomainSnapshot(msg)
	assert.Equal(t, "BTC-PERP", snap.Market)
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, 99.0, snap.BestBid)
	assert.Equal(t, 101.0, snap.BestAsk)
	assert.Equal(t, 100.0, snap.MidPrice)
}

func TestBookToDomainSnapshotOneSided(t *testing.T) {
	snap := BookToDomainSnapshot(&BookMessage{
		Market:    "THIN-PERP",
		Asks:      []WSBookLevel{{Price: "50", Size: "1"}},
		Timestamp: "1756555200000",
	})
	assert.Zero(t, snap.BestBid)
	assert.Equal(t, 50.0, snap.BestAsk)
	// no mid without both sides
	assert.Zero(t, snap.MidPrice)
}

func TestLevelToDomain(t *testing.T) {
	pc := LevelToDomain(&LevelMessage{
		Market:    "BTC-PERP",
		Side:      "SELL",
		Price:     "101.5",
		Size:      "0",
		Timestamp: "1756555200000",
	})
	assert.Equal(t, domain.SideSell, pc.Side)
	assert.Equal(t, 101.5, pc.Price)
	assert.Zero(t, pc.Size)
}

func TestTradeToDomain(t *testing.T) {
	lt := TradeToDomain(&TradeMessage{
		Market:    "BTC-PERP",
		Price:     "100.25",
		Size:      "0.4",
		Side:      "buy",
		Timestamp: "2026-08-30T12:00:00Z",
	})
	assert.Equal(t, domain.SideBuy, lt.Side)
	assert.Equal(t, 100.25, lt.Price)
	assert.Equal(t, 0.4, lt.Size)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), lt.Timestamp)
}
