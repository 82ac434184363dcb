package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/domain"
)

type fakeStatStore struct {
	records   []domain.StatRecord
	lastSince time.Time
	lastUntil time.Time
}

func (f *fakeStatStore) UpsertBatch(ctx context.Context, records []domain.StatRecord) error {
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStatStore) List(ctx context.Context, market, metric string, since, until time.Time) ([]domain.StatRecord, error) {
	f.lastSince, f.lastUntil = since, until
	var out []domain.StatRecord
	for _, r := range f.records {
		if r.Market != market || r.Metric != metric {
			continue
		}
		if r.Timestamp.Before(since) || !r.Timestamp.Before(until) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStatStore) GetLastTimestamp(ctx context.Context, market, metric string) (time.Time, error) {
	var last time.Time
	found := false
	for _, r := range f.records {
		if r.Market == market && r.Metric == metric && r.Timestamp.After(last) {
			last = r.Timestamp
			found = true
		}
	}
	if !found {
		return time.Time{}, domain.ErrNotFound
	}
	return last, nil
}

func (f *fakeStatStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.StatRecord, error) {
	return nil, nil
}

func (f *fakeStatStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func statAt(market, metric string, ts time.Time, v float64) domain.StatRecord {
	return domain.StatRecord{Market: market, Metric: metric, Timestamp: ts, Value: v}
}

func TestGetSeriesRejectsUnknownMetric(t *testing.T) {
	svc := NewStatsService(&fakeStatStore{}, testLogger())

	_, err := svc.GetSeries(context.Background(), "BTC-PERP", "tvl", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetSeries(context.Background(), "BTC-PERP", domain.MetricVolume, 0)
	assert.Error(t, err)
}

func TestGetSeriesPlainMetric(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &fakeStatStore{}
	for i := 0; i < 6; i++ {
		ts := now.Add(time.Duration(-6+i) * time.Hour)
		store.records = append(store.records, statAt("BTC-PERP", domain.MetricVolume, ts, float64(10+i)))
	}

	svc := NewStatsService(store, testLogger())
	svc.now = func() time.Time { return now }

	got, err := svc.GetSeries(context.Background(), "BTC-PERP", domain.MetricVolume, 1)
	require.NoError(t, err)
	require.Len(t, got, 6)

	// hourly zoom keeps one bar per sample
	assert.Equal(t, 10.0, got[0].Value)
	assert.Equal(t, 15.0, got[5].Value)
	assert.Equal(t, now.Add(-6*time.Hour), got[0].Timestamp)

	// the query window is exactly the trailing day
	assert.Equal(t, now.Add(-24*time.Hour), store.lastSince)
}

func TestGetSeriesCumulativeMetricAnchorsFirstDelta(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	store := &fakeStatStore{records: []domain.StatRecord{
		// one sample before the window anchors the first in-window delta
		statAt("BTC-PERP", domain.MetricFees, since.Add(-time.Hour), 1000),
		statAt("BTC-PERP", domain.MetricFees, since, 1010),
		statAt("BTC-PERP", domain.MetricFees, since.Add(time.Hour), 1025),
	}}

	svc := NewStatsService(store, testLogger())
	svc.now = func() time.Time { return now }

	got, err := svc.GetSeries(context.Background(), "BTC-PERP", domain.MetricFees, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// deltas, not running totals, and no giant first bar from the anchor
	assert.Equal(t, 10.0, got[0].Value)
	assert.Equal(t, 15.0, got[1].Value)
	assert.Equal(t, since, got[0].Timestamp)

	// the store was queried one sample wide of the window
	assert.Equal(t, since.Add(-time.Hour), store.lastSince)
}

func TestGetSeriesCumulativeWithoutAnchor(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	// series begins inside the window, so the first value passes through
	store := &fakeStatStore{records: []domain.StatRecord{
		statAt("BTC-PERP", domain.MetricFees, since.Add(2*time.Hour), 50),
		statAt("BTC-PERP", domain.MetricFees, since.Add(3*time.Hour), 80),
	}}

	svc := NewStatsService(store, testLogger())
	svc.now = func() time.Time { return now }

	got, err := svc.GetSeries(context.Background(), "BTC-PERP", domain.MetricFees, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 50.0, got[0].Value)
	assert.Equal(t, 30.0, got[1].Value)
}

func TestGetSeriesEmptyWindow(t *testing.T) {
	svc := NewStatsService(&fakeStatStore{}, testLogger())

	got, err := svc.GetSeries(context.Background(), "BTC-PERP", domain.MetricVolume, 7)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLatestValue(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &fakeStatStore{records: []domain.StatRecord{
		statAt("BTC-PERP", domain.MetricFees, now.Add(-2*time.Hour), 900),
		statAt("BTC-PERP", domain.MetricFees, now.Add(-time.Hour), 1000),
	}}
	svc := NewStatsService(store, testLogger())

	got, err := svc.LatestValue(context.Background(), "BTC-PERP", domain.MetricFees)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.Value)
	assert.Equal(t, now.Add(-time.Hour), got.Timestamp)

	_, err = svc.LatestValue(context.Background(), "ETH-PERP", domain.MetricFees)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
