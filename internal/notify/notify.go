// Package notify delivers operational alerts to external channels such as
// Telegram and Discord. Alerts carry an event kind so operators can choose
// which conditions reach them, and repeated alerts of the same kind are
// throttled to one per cooldown window.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Event kinds raised by the collection pipelines.
const (
	EventScrapeFailed  = "scrape_failed"
	EventFeedDown      = "feed_down"
	EventArchiveFailed = "archive_failed"
)

// defaultCooldown applies when no cooldown is configured.
const defaultCooldown = 10 * time.Minute

// Sender delivers a single alert over one channel.
type Sender interface {
	Send(ctx context.Context, title, body string) error
	Name() string
}

// Notifier fans alerts out to the configured senders. A Notifier with no
// senders is valid and drops everything, so callers never need a nil check.
type Notifier struct {
	senders  []Sender
	allowed  map[string]struct{}
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewNotifier creates a Notifier delivering to the given senders. events
// restricts which kinds Alert forwards; an empty list allows every kind.
func NewNotifier(senders []Sender, events []string, cooldown time.Duration, logger *slog.Logger) *Notifier {
	allowed := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = struct{}{}
		}
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Notifier{
		senders:  senders,
		allowed:  allowed,
		cooldown: cooldown,
		logger:   logger.With(slog.String("component", "notify")),
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Alert delivers an event-tagged alert. Kinds outside the configured event
// list are dropped, and a kind that already alerted within the cooldown
// window is suppressed.
func (n *Notifier) Alert(ctx context.Context, event, title, body string) error {
	if len(n.allowed) > 0 {
		if _, ok := n.allowed[event]; !ok {
			return nil
		}
	}
	if !n.take(event) {
		n.logger.DebugContext(ctx, "alert suppressed by cooldown",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, body)
}

// Critical delivers an alert bypassing both the event filter and the
// cooldown.
func (n *Notifier) Critical(ctx context.Context, title, body string) error {
	return n.dispatch(ctx, title, body)
}

// take records an alert for the event kind and reports whether it falls
// outside the cooldown window of the previous one.
func (n *Notifier) take(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastSent[event]; ok && now.Sub(last) < n.cooldown {
		return false
	}
	n.lastSent[event] = now
	return true
}

// dispatch sends to every sender. One failing channel does not stop the
// others; the failures come back joined.
func (n *Notifier) dispatch(ctx context.Context, title, body string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, body); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("channel", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("channel", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}
