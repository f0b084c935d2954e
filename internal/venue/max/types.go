package max

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/winyoulife/arbengine/internal/domain"
)

// Ticker is the public ticker payload for one market.
// All prices come back as decimal strings.
type Ticker struct {
	At   int64  `json:"at"`
	Buy  string `json:"buy"`
	Sell string `json:"sell"`
	Open string `json:"open"`
	Low  string `json:"low"`
	High string `json:"high"`
	Last string `json:"last"`
	Vol  string `json:"vol"`
}

// Depth is the public order book payload. Levels are [price, volume] string
// pairs.
type Depth struct {
	Timestamp int64       `json:"timestamp"`
	Asks      [][2]string `json:"asks"`
	Bids      [][2]string `json:"bids"`
}

// Account is one currency balance on the exchange.
type Account struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

// APIError is the error envelope returned by the exchange.
type APIError struct {
	Err struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// marketID converts a domain pair like "BTCTWD" to the exchange market id
// "btctwd".
func marketID(pair string) string {
	return strings.ToLower(pair)
}

// depthToQuote extracts the best bid and ask from a depth snapshot. Levels
// are scanned rather than trusting the ordering; the API has historically
// returned asks in descending order.
func depthToQuote(venue, pair string, d Depth) (domain.PriceQuote, error) {
	q := domain.PriceQuote{
		Venue:     venue,
		Pair:      pair,
		Timestamp: time.Unix(d.Timestamp, 0),
	}

	for _, level := range d.Asks {
		price, vol, err := parseLevel(level)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("max: parse ask level: %w", err)
		}
		if q.Ask == 0 || price < q.Ask {
			q.Ask = price
			q.AskVolume = vol
		}
	}
	for _, level := range d.Bids {
		price, vol, err := parseLevel(level)
		if err != nil {
			return domain.PriceQuote{}, fmt.Errorf("max: parse bid level: %w", err)
		}
		if price > q.Bid {
			q.Bid = price
			q.BidVolume = vol
		}
	}

	if q.Bid == 0 || q.Ask == 0 {
		return domain.PriceQuote{}, fmt.Errorf("max: empty book for %s", pair)
	}
	return q, nil
}

func parseLevel(level [2]string) (price, vol float64, err error) {
	if price, err = strconv.ParseFloat(level[0], 64); err != nil {
		return 0, 0, err
	}
	if vol, err = strconv.ParseFloat(level[1], 64); err != nil {
		return 0, 0, err
	}
	return price, vol, nil
}
