package domain

import "time"

// Metric names for the hourly statistics series collected from the stats API.
const (
	MetricFees         = "fees"          // cumulative running total
	MetricVolume       = "volume"        // per-hour amount
	MetricOpenInterest = "open_interest" // point-in-time level
	MetricDeposits     = "deposits"      // point-in-time level
	MetricBorrows      = "borrows"       // point-in-time level
)

// CumulativeMetric reports whether a metric is reported by the stats API as a
// running total rather than a per-period amount. Cumulative series are
// converted to deltas before bucketing for bar charts.
func CumulativeMetric(metric string) bool {
	return metric == MetricFees
}

// KnownMetric reports whether the metric name is one dexlens collects.
func KnownMetric(metric string) bool {
	switch metric {
	case MetricFees, MetricVolume, MetricOpenInterest, MetricDeposits, MetricBorrows:
		return true
	}
	return false
}

// StatRecord is one timestamped observation of a numeric metric for a market.
// Sequences handed to the aggregator are assumed ascending by Timestamp.
type StatRecord struct {
	Market    string
	Metric    string
	Timestamp time.Time
	Value     float64
}
