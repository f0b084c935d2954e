// Package notify pushes engine events to operator channels (Telegram,
// Discord). Events can be filtered by type so operators only receive the
// alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// sendTimeout bounds each delivery so a slow webhook cannot back up the
// engine's event path.
const sendTimeout = 10 * time.Second

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Dispatcher fans engine events out to the registered senders. It satisfies
// the engine's Notifier interface. Delivery happens on a background
// goroutine; the engine never waits on a webhook.
type Dispatcher struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher delivering to senders. Only events
// whose type appears in events are forwarded; an empty list allows all.
func NewDispatcher(senders []Sender, events []string, logger *slog.Logger) *Dispatcher {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Dispatcher{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Notify formats and delivers the event to all senders, subject to the
// event filter. It returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, ev domain.Event) {
	if len(d.senders) == 0 {
		return
	}
	if len(d.events) > 0 && !d.events[ev.Type] {
		return
	}

	title, message := render(ev)
	go d.deliver(title, message)
}

// deliver sends to every channel; one channel failing does not stop the
// others.
func (d *Dispatcher) deliver(title, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	for _, s := range d.senders {
		if err := s.Send(ctx, title, message); err != nil {
			d.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		d.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

// render turns an event into a human-readable title and body. Detail keys
// are sorted so messages are stable.
func render(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventOpportunityDetected:
		title = "Opportunity detected"
	case domain.EventExecutionCompleted:
		title = "Execution completed"
	case domain.EventExecutionFailed:
		title = "Execution failed"
	case domain.EventEmergencyStop:
		title = "EMERGENCY STOP"
	case domain.EventStateChanged:
		title = "Engine state changed"
	default:
		title = ev.Type
	}

	keys := make([]string, 0, len(ev.Detail))
	for k := range ev.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, ev.Detail[k])
	}
	fmt.Fprintf(&b, "at: %s", ev.Timestamp.Format(time.RFC3339))
	return title, b.String()
}
