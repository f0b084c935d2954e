package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// CacheSource implements domain.QuoteSource on top of the shared quote
// cache. A WebSocket feed keeps the cache warm; scans then read quotes
// without hitting the exchange REST API.
type CacheSource struct {
	cache    domain.QuoteCache
	maxAge   time.Duration
	fallback domain.QuoteSource
}

var _ domain.QuoteSource = (*CacheSource)(nil)

// NewCacheSource creates a CacheSource. fallback may be nil; when set it is
// consulted for venues or pairs missing from the cache.
func NewCacheSource(cache domain.QuoteCache, maxAge time.Duration, fallback domain.QuoteSource) *CacheSource {
	return &CacheSource{
		cache:    cache,
		maxAge:   maxAge,
		fallback: fallback,
	}
}

// GetQuote returns the cached quote for venue/pair. Quotes older than the
// configured max age are rejected with domain.ErrQuoteStale rather than
// silently feeding stale prices into detection.
func (s *CacheSource) GetQuote(ctx context.Context, venue, pair string) (domain.PriceQuote, error) {
	q, err := s.cache.GetQuote(ctx, venue, pair)
	if err != nil {
		if s.fallback != nil {
			return s.fallback.GetQuote(ctx, venue, pair)
		}
		return domain.PriceQuote{}, err
	}

	if s.maxAge > 0 && q.Stale(time.Now(), s.maxAge) {
		if s.fallback != nil {
			return s.fallback.GetQuote(ctx, venue, pair)
		}
		return domain.PriceQuote{}, fmt.Errorf("venue: quote %s %s aged out: %w", venue, pair, domain.ErrQuoteStale)
	}
	return q, nil
}
