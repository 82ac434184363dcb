package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/notify"
)

// Archiver moves old stat and trade rows from the database to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	alerts        Alerter
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver. alerts may be nil.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, alerts Alerter, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		alerts:        alerts,
		logger:        logger,
	}
}

// Run executes a single archive run. It calculates the cutoff time based on
// retentionDays and archives stats and trades older than the cutoff.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	statsArchived, err := a.blobArchiver.ArchiveStats(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving stats before %v: %w", cutoff, err)
	}

	tradesArchived, err := a.blobArchiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("stats_archived", statsArchived),
		slog.Int64("trades_archived", tradesArchived),
	)

	return nil
}

// RunCron runs the archiver on a cron schedule until the context is cancelled.
// It supports cron expressions in the standard 5-field format
// "minute hour day-of-month month day-of-week", including lists, ranges, and
// steps.
//
// Example: "0 3 * * *" runs at 3:00 AM every day.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}

		waitDuration := time.Until(next)
		a.logger.Info("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", waitDuration),
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
				if a.alerts != nil {
					_ = a.alerts.Alert(ctx, notify.EventArchiveFailed, "archive run failed", err.Error())
				}
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field. Supported forms: "*", a plain
// value ("5"), a range ("1-5"), a step ("*/15", "0-30/10"), and
// comma-separated lists of any of these.
func parseCronField(field string, min, max int) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)

		step := 1
		if base, stepStr, found := strings.Cut(part, "/"); found {
			n, err := strconv.Atoi(stepStr)
			if err != nil || n < 1 {
				return cronField{}, fmt.Errorf("invalid cron step %q", part)
			}
			step = n
			part = base
		}

		lo, hi := min, max
		switch {
		case part == "*":
			// full range, stepped below
		case strings.Contains(part, "-"):
			loStr, hiStr, _ := strings.Cut(part, "-")
			var err error
			if lo, err = strconv.Atoi(loStr); err != nil {
				return cronField{}, fmt.Errorf("invalid cron range %q", part)
			}
			if hi, err = strconv.Atoi(hiStr); err != nil {
				return cronField{}, fmt.Errorf("invalid cron range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return cronField{}, fmt.Errorf("invalid cron field value %q", part)
			}
			lo, hi = v, v
		}

		if lo < min || hi > max || lo > hi {
			return cronField{}, fmt.Errorf("cron value %q out of range %d-%d", part, min, max)
		}
		for v := lo; v <= hi; v += step {
			values = append(values, v)
		}
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesDay reports whether the three date fields match t.
func (c parsedCron) matchesDay(t time.Time) bool {
	return c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// matchesTime reports whether all five cron fields match t.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.matchesDay(t) &&
		c.hour.matches(t.Hour()) &&
		c.minute.matches(t.Minute())
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	var c parsedCron
	for i, spec := range []struct {
		name     string
		min, max int
		dst      *cronField
	}{
		{"minute", 0, 59, &c.minute},
		{"hour", 0, 23, &c.hour},
		{"day-of-month", 1, 31, &c.dayOfMonth},
		{"month", 1, 12, &c.month},
		{"day-of-week", 0, 6, &c.dayOfWeek},
	} {
		f, err := parseCronField(fields[i], spec.min, spec.max)
		if err != nil {
			return parsedCron{}, fmt.Errorf("parsing %s field: %w", spec.name, err)
		}
		*spec.dst = f
	}
	return c, nil
}

// nextCronTime calculates the first time strictly after 'after' that matches
// the cron expression. Days whose date fields cannot match are skipped whole;
// matching days are walked minute by minute. The search is capped at one year
// out so an unsatisfiable date combination terminates.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := after.AddDate(1, 0, 1)

	for t.Before(limit) {
		if !cron.matchesDay(t) {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
			continue
		}
		if cron.hour.matches(t.Hour()) && cron.minute.matches(t.Minute()) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time within one year for %q", cronExpr)
}
