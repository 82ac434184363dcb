package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/domain"
)

func hourly(start time.Time, values ...float64) []domain.StatRecord {
	recs := make([]domain.StatRecord, len(values))
	for i, v := range values {
		recs[i] = domain.StatRecord{
			Market:    "BTC-PERP",
			Metric:    domain.MetricVolume,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Value:     v,
		}
	}
	return recs
}

func TestIntervalHoursForDays(t *testing.T) {
	assert.Equal(t, 1, IntervalHoursForDays(1))
	assert.Equal(t, 6, IntervalHoursForDays(7))
	assert.Equal(t, 24, IntervalHoursForDays(30))
	assert.Equal(t, 24, IntervalHoursForDays(90))
}

func TestBucketSumEmpty(t *testing.T) {
	assert.Empty(t, BucketSum(nil, 24))
	assert.Empty(t, CumulativeToDelta(nil))
}

func TestBucketSumDailyBuckets(t *testing.T) {
	// 26 hourly records starting at midnight UTC span two daily intervals:
	// 24 records in the first, 2 in the second.
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	values := make([]float64, 26)
	for i := range values {
		values[i] = 1
	}
	got := BucketSum(hourly(start, values...), 24)

	require.Len(t, got, 2)
	assert.Equal(t, 24.0, got[0].Value)
	assert.Equal(t, 2.0, got[1].Value)
}

func TestBucketSumPreservesSeedFields(t *testing.T) {
	start := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	recs := hourly(start, 5, 7, 11) // 22:00, 23:00 in day one; 00:00 in day two
	got := BucketSum(recs, 24)

	require.Len(t, got, 2)
	// Each bucket carries the record that opened it.
	assert.Equal(t, recs[0].Timestamp, got[0].Timestamp)
	assert.Equal(t, recs[2].Timestamp, got[1].Timestamp)
	assert.Equal(t, "BTC-PERP", got[0].Market)
	assert.Equal(t, 12.0, got[0].Value)
	assert.Equal(t, 11.0, got[1].Value)
}

func TestBucketSumSixHourBuckets(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := BucketSum(hourly(start, 1, 2, 3, 4, 5, 6, 7), 6)

	require.Len(t, got, 2)
	assert.Equal(t, 21.0, got[0].Value) // hours 0-5
	assert.Equal(t, 7.0, got[1].Value)  // hour 6
}

// A later record mapping back to an earlier interval opens a fresh bucket
// rather than merging into the closed one. Callers must feed time-ascending
// input; this pins the single-pointer behavior for unsorted series.
func TestBucketSumOutOfOrderOpensDuplicateBucket(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recs := []domain.StatRecord{
		{Timestamp: start, Value: 1},
		{Timestamp: start.Add(25 * time.Hour), Value: 2},
		{Timestamp: start.Add(time.Hour), Value: 4},
	}
	got := BucketSum(recs, 24)

	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got[0].Value)
	assert.Equal(t, 2.0, got[1].Value)
	assert.Equal(t, 4.0, got[2].Value)
}

func TestCumulativeToDelta(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := CumulativeToDelta(hourly(start, 10, 15, 25))

	require.Len(t, got, 3)
	assert.Equal(t, 10.0, got[0].Value) // first element passes through raw
	assert.Equal(t, 5.0, got[1].Value)
	assert.Equal(t, 10.0, got[2].Value)
}

func TestCumulativeToDeltaDoesNotMutateInput(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	in := hourly(start, 10, 15)
	_ = CumulativeToDelta(in)
	assert.Equal(t, 15.0, in[1].Value)
}

func TestCumulativeToDeltaAllowsNegative(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	got := CumulativeToDelta(hourly(start, 10, 4)) // counter reset upstream
	require.Len(t, got, 2)
	assert.Equal(t, -6.0, got[1].Value)
}

// Summing all bucketed deltas over the full range recovers last-first of the
// cumulative series, modulo the first-element passthrough.
func TestDeltaBucketRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cumulative := hourly(start, 100, 130, 135, 180, 220, 220, 291)

	buckets := BucketSum(CumulativeToDelta(cumulative), 24)
	var total float64
	for _, b := range buckets {
		total += b.Value
	}
	// The first record's raw value rides along with the true deltas.
	first := cumulative[0].Value
	last := cumulative[len(cumulative)-1].Value
	assert.InDelta(t, last-first, total-first, 1e-9)
}
