package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/winyoulife/arbengine/internal/domain"
)

// quoteTTL evicts quotes that stop being refreshed; a dead feed must not
// leave permanently "fresh looking" keys behind.
const quoteTTL = 5 * time.Minute

// QuoteCache implements domain.QuoteCache using Redis hashes. Each quote is
// stored at key "arbengine:quote:{venue}:{pair}" with one field per side
// plus the observation timestamp in Unix nanoseconds.
type QuoteCache struct {
	rdb *redis.Client
}

var _ domain.QuoteCache = (*QuoteCache)(nil)

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(venue, pair string) string {
	return key("quote", venue, pair)
}

// SetQuote stores the latest quote for its venue/pair.
func (qc *QuoteCache) SetQuote(ctx context.Context, q domain.PriceQuote) error {
	key := quoteKey(q.Venue, q.Pair)
	fields := map[string]any{
		"bid":     formatFloat(q.Bid),
		"ask":     formatFloat(q.Ask),
		"bid_vol": formatFloat(q.BidVolume),
		"ask_vol": formatFloat(q.AskVolume),
		"ts":      strconv.FormatInt(q.Timestamp.UnixNano(), 10),
	}
	pipe := qc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s %s: %w", q.Venue, q.Pair, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for venue/pair. It returns
// domain.ErrNotFound when the key does not exist.
func (qc *QuoteCache) GetQuote(ctx context.Context, venue, pair string) (domain.PriceQuote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(venue, pair)).Result()
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: get quote %s %s: %w", venue, pair, err)
	}
	if len(vals) == 0 {
		return domain.PriceQuote{}, domain.ErrNotFound
	}
	return parseQuote(venue, pair, vals)
}

// GetVenueQuotes retrieves the latest quotes for multiple pairs on one venue
// using a pipeline. Pairs without a cached quote are silently omitted.
func (qc *QuoteCache) GetVenueQuotes(ctx context.Context, venue string, pairs []string) (map[string]domain.PriceQuote, error) {
	if len(pairs) == 0 {
		return map[string]domain.PriceQuote{}, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(pairs))
	for _, pair := range pairs {
		cmds[pair] = pipe.HGetAll(ctx, quoteKey(venue, pair))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get venue quotes pipeline: %w", err)
	}

	result := make(map[string]domain.PriceQuote, len(pairs))
	for pair, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		q, err := parseQuote(venue, pair, vals)
		if err != nil {
			continue
		}
		result[pair] = q
	}
	return result, nil
}

func parseQuote(venue, pair string, vals map[string]string) (domain.PriceQuote, error) {
	q := domain.PriceQuote{Venue: venue, Pair: pair}
	var err error
	if q.Bid, err = strconv.ParseFloat(vals["bid"], 64); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse bid for %s %s: %w", venue, pair, err)
	}
	if q.Ask, err = strconv.ParseFloat(vals["ask"], 64); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse ask for %s %s: %w", venue, pair, err)
	}
	if q.BidVolume, err = strconv.ParseFloat(vals["bid_vol"], 64); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse bid_vol for %s %s: %w", venue, pair, err)
	}
	if q.AskVolume, err = strconv.ParseFloat(vals["ask_vol"], 64); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse ask_vol for %s %s: %w", venue, pair, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("redis: parse ts for %s %s: %w", venue, pair, err)
	}
	q.Timestamp = time.Unix(0, tsNano)
	return q, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
