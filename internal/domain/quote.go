package domain

import (
	"context"
	"time"
)

// PriceQuote is a two-sided top-of-book snapshot for a pair on one venue.
type PriceQuote struct {
	Venue     string
	Pair      string
	Bid       float64
	Ask       float64
	BidVolume float64
	AskVolume float64
	Timestamp time.Time
}

// Mid returns the quote midpoint.
func (q PriceQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns the absolute bid-ask spread.
func (q PriceQuote) Spread() float64 {
	return q.Ask - q.Bid
}

// SpreadRatio returns the spread relative to the midpoint. Zero when the
// midpoint is zero.
func (q PriceQuote) SpreadRatio() float64 {
	mid := q.Mid()
	if mid == 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid
}

// Stale reports whether the quote is older than maxAge at the given time.
func (q PriceQuote) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.Timestamp) > maxAge
}

// QuoteSource supplies price quotes for venue/pair combinations. Returns
// ErrNotFound when no quote is available.
type QuoteSource interface {
	GetQuote(ctx context.Context, venue, pair string) (PriceQuote, error)
}
