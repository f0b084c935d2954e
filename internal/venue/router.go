// Package venue routes quote lookups to per-exchange clients.
package venue

import (
	"context"
	"fmt"

	"github.com/winyoulife/arbengine/internal/domain"
)

// PairSource fetches the current quote for a single trading pair on one
// exchange. Each exchange client implements it.
type PairSource interface {
	Quote(ctx context.Context, pair string) (domain.PriceQuote, error)
}

// Router implements domain.QuoteSource by dispatching to the registered
// per-venue client. Lookups for venues with no client return
// domain.ErrNotFound.
type Router struct {
	sources map[string]PairSource
}

var _ domain.QuoteSource = (*Router)(nil)

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{sources: make(map[string]PairSource)}
}

// Register adds a client for the given venue name, replacing any previous
// registration.
func (r *Router) Register(venue string, src PairSource) {
	r.sources[venue] = src
}

// GetQuote fetches the current quote for pair on venue.
func (r *Router) GetQuote(ctx context.Context, venue, pair string) (domain.PriceQuote, error) {
	src, ok := r.sources[venue]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("venue: no client for %s: %w", venue, domain.ErrNotFound)
	}
	return src.Quote(ctx, pair)
}

// Venues returns the registered venue names.
func (r *Router) Venues() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}
