package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(ctx context.Context, title, body string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestAlertFiltersByEventKind(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventArchiveFailed}, time.Minute, discardLogger())

	require.NoError(t, n.Alert(context.Background(), EventScrapeFailed, "sync down", "details"))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.Alert(context.Background(), EventArchiveFailed, "archive down", "details"))
	assert.Equal(t, []string{"archive down"}, sender.titles)
}

func TestAlertEmptyEventListAllowsEverything(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, time.Minute, discardLogger())

	require.NoError(t, n.Alert(context.Background(), "anything", "title", "body"))
	assert.Len(t, sender.titles, 1)
}

func TestAlertCooldownSuppressesRepeats(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, 10*time.Minute, discardLogger())

	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	require.NoError(t, n.Alert(context.Background(), EventFeedDown, "feed down", "x"))
	require.NoError(t, n.Alert(context.Background(), EventFeedDown, "feed down", "x"))
	assert.Len(t, sender.titles, 1)

	// a different kind is not throttled by the first one
	require.NoError(t, n.Alert(context.Background(), EventScrapeFailed, "scrape down", "x"))
	assert.Len(t, sender.titles, 2)

	clock = clock.Add(11 * time.Minute)
	require.NoError(t, n.Alert(context.Background(), EventFeedDown, "feed down", "x"))
	assert.Len(t, sender.titles, 3)
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("boom")}
	healthy := &recordingSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, time.Minute, discardLogger())

	err := n.Alert(context.Background(), EventFeedDown, "feed down", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, healthy.titles, 1)
}

func TestCriticalBypassesFilterAndCooldown(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{EventArchiveFailed}, time.Hour, discardLogger())

	require.NoError(t, n.Critical(context.Background(), "down", "x"))
	require.NoError(t, n.Critical(context.Background(), "down", "x"))
	assert.Len(t, sender.titles, 2)
}

func TestNoSendersIsANoOp(t *testing.T) {
	n := NewNotifier(nil, nil, time.Minute, discardLogger())
	assert.NoError(t, n.Alert(context.Background(), EventFeedDown, "feed down", "x"))
	assert.NoError(t, n.Critical(context.Background(), "down", "x"))
}
