package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/notify"
)

type fakeSyncer struct {
	count int
	err   error
}

func (f *fakeSyncer) Sync(ctx context.Context) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.count++
	return f.count, nil
}

func TestMarketScraperAlertsAfterRepeatedFailures(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("gateway 502")}
	alerts := &fakeAlerter{}
	s := NewMarketScraper(syncer, alerts, slog.New(slog.DiscardHandler))

	// the alert fires once at the escalation threshold, not on every failure
	for i := 0; i < failureEscalation+1; i++ {
		s.runAndLog(context.Background())
	}
	assert.Equal(t, []string{notify.EventScrapeFailed}, alerts.events)
}

func TestMarketScraperSuccessResetsFailureStreak(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("gateway 502")}
	alerts := &fakeAlerter{}
	s := NewMarketScraper(syncer, alerts, slog.New(slog.DiscardHandler))

	s.runAndLog(context.Background())
	s.runAndLog(context.Background())
	syncer.err = nil
	s.runAndLog(context.Background())

	require.Zero(t, s.failures)
	assert.Empty(t, alerts.events)
}
