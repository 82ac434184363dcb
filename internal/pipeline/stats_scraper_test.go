package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/notify"
)

type fakeAlerter struct {
	events []string
}

func (f *fakeAlerter) Alert(ctx context.Context, event, title, body string) error {
	f.events = append(f.events, event)
	return nil
}

type fetchWindow struct {
	market, metric string
	since, until   time.Time
}

type fakeFetcher struct {
	windows    []fetchWindow
	err        error
	failMarket string // when set, only this market fails
}

func (f *fakeFetcher) GetStatHistory(ctx context.Context, market, metric string, since, until time.Time) ([]domain.StatRecord, error) {
	if f.err != nil && (f.failMarket == "" || f.failMarket == market) {
		return nil, f.err
	}
	f.windows = append(f.windows, fetchWindow{market, metric, since, until})
	// one sample per window at the window start
	return []domain.StatRecord{{Market: market, Metric: metric, Timestamp: since, Value: 1}}, nil
}

type fakeLister struct {
	names []string
	err   error
}

func (f *fakeLister) ActiveNames(ctx context.Context) ([]string, error) {
	return f.names, f.err
}

type scraperStatStore struct {
	last     map[string]time.Time
	upserted []domain.StatRecord
}

func (s *scraperStatStore) UpsertBatch(ctx context.Context, records []domain.StatRecord) error {
	s.upserted = append(s.upserted, records...)
	return nil
}

func (s *scraperStatStore) List(ctx context.Context, market, metric string, since, until time.Time) ([]domain.StatRecord, error) {
	return nil, nil
}

func (s *scraperStatStore) GetLastTimestamp(ctx context.Context, market, metric string) (time.Time, error) {
	ts, ok := s.last[market+"/"+metric]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return ts, nil
}

func (s *scraperStatStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.StatRecord, error) {
	return nil, nil
}

func (s *scraperStatStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func TestScrapeSeriesBackfillsFreshSeries(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := &scraperStatStore{}
	s := NewStatsScraper(fetcher, &fakeLister{}, store, []string{domain.MetricVolume}, nil, slog.New(slog.DiscardHandler))

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	n, err := s.scrapeSeries(context.Background(), "BTC-PERP", domain.MetricVolume, now)
	require.NoError(t, err)

	// 90 days of backfill pages into three month-sized windows
	require.Len(t, fetcher.windows, 3)
	assert.Equal(t, now.Add(-maxBackfillWindow), fetcher.windows[0].since)
	assert.Equal(t, fetcher.windows[0].until, fetcher.windows[1].since)
	assert.Equal(t, now, fetcher.windows[2].until)

	assert.Equal(t, 3, n)
	assert.Len(t, store.upserted, 3)
}

func TestScrapeSeriesResumesAfterLastSample(t *testing.T) {
	fetcher := &fakeFetcher{}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &scraperStatStore{last: map[string]time.Time{
		"BTC-PERP/" + domain.MetricFees: now.Add(-3 * time.Hour),
	}}
	s := NewStatsScraper(fetcher, &fakeLister{}, store, nil, nil, slog.New(slog.DiscardHandler))

	n, err := s.scrapeSeries(context.Background(), "BTC-PERP", domain.MetricFees, now)
	require.NoError(t, err)

	require.Len(t, fetcher.windows, 1)
	// resume one sample past the stored timestamp, never re-fetching it
	assert.Equal(t, now.Add(-2*time.Hour), fetcher.windows[0].since)
	assert.Equal(t, now, fetcher.windows[0].until)
	assert.Equal(t, 1, n)
}

func TestScrapeSeriesUpToDate(t *testing.T) {
	fetcher := &fakeFetcher{}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store := &scraperStatStore{last: map[string]time.Time{
		"BTC-PERP/" + domain.MetricFees: now.Add(-30 * time.Minute),
	}}
	s := NewStatsScraper(fetcher, &fakeLister{}, store, nil, nil, slog.New(slog.DiscardHandler))

	n, err := s.scrapeSeries(context.Background(), "BTC-PERP", domain.MetricFees, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, fetcher.windows)
}

func TestRunContinuesPastSeriesFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream 500"), failMarket: "BTC-PERP"}
	store := &scraperStatStore{}
	lister := &fakeLister{names: []string{"BTC-PERP", "ETH-PERP"}}
	s := NewStatsScraper(fetcher, lister, store, []string{domain.MetricVolume}, nil, slog.New(slog.DiscardHandler))

	// individual series failures are logged, not returned
	require.NoError(t, s.Run(context.Background()))
	assert.NotEmpty(t, store.upserted)
	for _, rec := range store.upserted {
		assert.Equal(t, "ETH-PERP", rec.Market)
	}
}

func TestRunFailsWhenEverySeriesFails(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream 500")}
	lister := &fakeLister{names: []string{"BTC-PERP", "ETH-PERP"}}
	s := NewStatsScraper(fetcher, lister, &scraperStatStore{}, []string{domain.MetricVolume}, nil, slog.New(slog.DiscardHandler))

	assert.Error(t, s.Run(context.Background()))
}

func TestRunLoopAlertsAfterRepeatedFailures(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("upstream 500")}
	lister := &fakeLister{names: []string{"BTC-PERP"}}
	alerts := &fakeAlerter{}
	s := NewStatsScraper(fetcher, lister, &scraperStatStore{}, []string{domain.MetricVolume}, alerts, slog.New(slog.DiscardHandler))

	for i := 0; i < failureEscalation; i++ {
		s.runAndLog(context.Background())
	}
	require.Equal(t, []string{notify.EventScrapeFailed}, alerts.events)

	// the streak keeps failing but only one alert goes out
	s.runAndLog(context.Background())
	assert.Len(t, alerts.events, 1)
}

func TestRunAbortsWhenMarketListFails(t *testing.T) {
	lister := &fakeLister{err: errors.New("db down")}
	s := NewStatsScraper(&fakeFetcher{}, lister, &scraperStatStore{}, nil, nil, slog.New(slog.DiscardHandler))

	assert.Error(t, s.Run(context.Background()))
}

func TestDefaultMetricSet(t *testing.T) {
	s := NewStatsScraper(&fakeFetcher{}, &fakeLister{}, &scraperStatStore{}, nil, nil, slog.New(slog.DiscardHandler))
	assert.Equal(t, []string{
		domain.MetricFees,
		domain.MetricVolume,
		domain.MetricOpenInterest,
		domain.MetricDeposits,
		domain.MetricBorrows,
	}, s.metrics)
}
