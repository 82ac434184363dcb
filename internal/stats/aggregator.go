// Package stats converts flat, possibly-cumulative statistics series into
// hourly-bucketed sums suitable for bar and area charts with a selectable
// zoom resolution.
package stats

import (
	"github.com/dexlens/dexlens/internal/domain"
)

const millisPerHour = 3_600_000

// IntervalHoursForDays maps a chart zoom selection ("days to show") to a
// bucket width in hours: 1-day view gets hourly buckets, up to a week gets
// 6-hour buckets, anything longer gets daily buckets.
func IntervalHoursForDays(days int) int {
	switch {
	case days <= 1:
		return 1
	case days <= 7:
		return 6
	default:
		return 24
	}
}

// BucketSum groups records into fixed-width intervals of intervalHours and
// sums Value per interval. Records are expected ascending by Timestamp; a
// single open bucket is maintained and a new one is opened whenever a
// record's interval differs from the previous record's. The open bucket is
// seeded with a copy of the triggering record, so non-summed fields reflect
// the first record of the interval. A closed bucket is never reopened, so
// out-of-order input yields duplicate buckets for the same interval.
func BucketSum(records []domain.StatRecord, intervalHours int) []domain.StatRecord {
	if len(records) == 0 {
		return nil
	}
	intervalMillis := int64(intervalHours) * millisPerHour

	out := make([]domain.StatRecord, 0, len(records))
	var openStart int64
	for i, rec := range records {
		start := rec.Timestamp.UnixMilli() / intervalMillis * intervalMillis
		if i == 0 || start != openStart {
			out = append(out, rec)
			openStart = start
			continue
		}
		out[len(out)-1].Value += rec.Value
	}
	return out
}

// CumulativeToDelta converts a running-total series into per-interval deltas.
// The first record is carried through unchanged since its delta is undefined.
// Negative deltas (e.g. a counter reset upstream) pass through unclamped.
func CumulativeToDelta(records []domain.StatRecord) []domain.StatRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]domain.StatRecord, len(records))
	copy(out, records)
	for i := len(out) - 1; i >= 1; i-- {
		out[i].Value -= records[i-1].Value
	}
	return out
}
