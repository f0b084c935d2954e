package domain

import (
	"context"
	"time"
)

// QuoteCache provides fast access to the latest quote per venue/pair.
type QuoteCache interface {
	SetQuote(ctx context.Context, quote PriceQuote) error
	GetQuote(ctx context.Context, venue, pair string) (PriceQuote, error)
	GetVenueQuotes(ctx context.Context, venue string, pairs []string) (map[string]PriceQuote, error)
}

// RateLimiter throttles actions identified by key to limit occurrences per
// window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus provides pub/sub of engine events between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Event is a notable engine occurrence published on the bus and pushed to
// notification channels.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Event types emitted by the engine.
const (
	EventOpportunityDetected = "opportunity_detected"
	EventExecutionCompleted  = "execution_completed"
	EventExecutionFailed     = "execution_failed"
	EventEmergencyStop       = "emergency_stop"
	EventStateChanged        = "state_changed"
)
