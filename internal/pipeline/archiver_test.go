package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCron(t *testing.T) {
	c, err := parseCron("0 3 * * *")
	require.NoError(t, err)
	assert.False(t, c.minute.wildcard)
	assert.Equal(t, []int{0}, c.minute.values)
	assert.Equal(t, []int{3}, c.hour.values)
	assert.True(t, c.dayOfMonth.wildcard)

	_, err = parseCron("0 3 * *")
	assert.Error(t, err)

	_, err = parseCron("x 3 * * *")
	assert.Error(t, err)
}

func TestParseCronFieldForms(t *testing.T) {
	f, err := parseCronField("1,15,30", 0, 59)
	require.NoError(t, err)
	assert.True(t, f.matches(15))
	assert.False(t, f.matches(16))

	wild, err := parseCronField("*", 0, 59)
	require.NoError(t, err)
	assert.True(t, wild.matches(59))

	rng, err := parseCronField("1-5", 0, 6)
	require.NoError(t, err)
	assert.True(t, rng.matches(3))
	assert.False(t, rng.matches(0))

	step, err := parseCronField("*/15", 0, 59)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 15, 30, 45}, step.values)

	_, err = parseCronField("61", 0, 59)
	assert.Error(t, err)

	_, err = parseCronField("5-1", 0, 59)
	assert.Error(t, err)
}

func TestCronMatchesTime(t *testing.T) {
	c, err := parseCron("30 14 * * *")
	require.NoError(t, err)

	assert.True(t, c.matchesTime(time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 8, 30, 14, 31, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 8, 30, 15, 30, 0, 0, time.UTC)))
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 30, 12, 5, 42, 0, time.UTC)

	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), next)

	next, err = nextCronTime("30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC), next)

	// exactly on a matching minute should advance to the next occurrence
	next, err = nextCronTime("0 3 * * *", time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeWeekday(t *testing.T) {
	// 2026-08-30 is a Sunday; day-of-week 1 is Monday
	after := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	next, err := nextCronTime("0 9 * * 1", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

type countingArchiver struct {
	statsCalls  int
	tradesCalls int
	cutoffs     []time.Time
}

func (a *countingArchiver) ArchiveStats(ctx context.Context, before time.Time) (int64, error) {
	a.statsCalls++
	a.cutoffs = append(a.cutoffs, before)
	return 10, nil
}

func (a *countingArchiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	a.tradesCalls++
	return 5, nil
}

func TestArchiverRunUsesRetentionCutoff(t *testing.T) {
	blob := &countingArchiver{}
	arch := NewArchiver(blob, 90, nil, slog.New(slog.DiscardHandler))

	require.NoError(t, arch.Run(context.Background()))
	assert.Equal(t, 1, blob.statsCalls)
	assert.Equal(t, 1, blob.tradesCalls)

	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	require.Len(t, blob.cutoffs, 1)
	assert.WithinDuration(t, wantCutoff, blob.cutoffs[0], time.Minute)
}
