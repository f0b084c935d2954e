package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winyoulife/arbengine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(venue, pair string, bid, ask, bidVol, askVol float64) domain.PriceQuote {
	return domain.PriceQuote{
		Venue:     venue,
		Pair:      pair,
		Bid:       bid,
		Ask:       ask,
		BidVolume: bidVol,
		AskVolume: askVol,
		Timestamp: time.Now(),
	}
}

func crossVenueConfig() CrossVenueConfig {
	return CrossVenueConfig{
		Pairs:        []string{"BTCTWD"},
		Venues:       []string{"max", "binance"},
		MinProfitPct: 0.001,
		MaxCapital:   10_000_000,
		TTL:          30 * time.Second,
		MaxQuoteAge:  10 * time.Second,
	}
}

func TestCrossVenueDetectsDiscrepancy(t *testing.T) {
	book := NewQuoteBook()
	// Buy on max at 3,500,000; sell on binance at 3,512,000.
	book.SetQuote(quote("max", "BTCTWD", 3_498_000, 3_500_000, 2.0, 2.0))
	book.SetQuote(quote("binance", "BTCTWD", 3_512_000, 3_514_000, 1.5, 1.5))

	d := NewCrossVenue(crossVenueConfig(), testLogger())
	opps, err := d.Detect(context.Background(), book)
	require.NoError(t, err)
	require.Len(t, opps, 1, "only the profitable direction should be emitted")

	opp := opps[0]
	assert.Equal(t, domain.StrategyCrossVenue, opp.Kind)
	assert.Equal(t, []string{"max", "binance"}, opp.Venues)
	require.Len(t, opp.Legs, 2)
	assert.Equal(t, domain.LegBuy, opp.Legs[0].Action)
	assert.Equal(t, "max", opp.Legs[0].Venue)
	assert.Equal(t, domain.LegSell, opp.Legs[1].Action)
	assert.Equal(t, "binance", opp.Legs[1].Venue)

	// Volume is capped by the thinner side.
	assert.InDelta(t, 1.5, opp.Volume, 1e-9)
	assert.InDelta(t, 12_000.0/3_500_000, opp.ProfitPct, 1e-9)
	assert.InDelta(t, 12_000*1.5, opp.ExpectedProfit, 1e-6)
	assert.Equal(t, domain.OppActive, opp.Status)
}

func TestCrossVenueBelowThreshold(t *testing.T) {
	book := NewQuoteBook()
	book.SetQuote(quote("max", "BTCTWD", 3_499_000, 3_500_000, 2.0, 2.0))
	book.SetQuote(quote("binance", "BTCTWD", 3_500_500, 3_502_000, 2.0, 2.0))

	d := NewCrossVenue(crossVenueConfig(), testLogger())
	opps, err := d.Detect(context.Background(), book)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestCrossVenueCrossedBookEmitsOneDirection(t *testing.T) {
	// Both directions of this crossed book clear the threshold: buying on
	// max at 100 and selling on binance at 103 makes 3, buying on binance
	// at 101 and selling on max at 102 makes 1. Only the better one may be
	// emitted for the venue pair.
	book := NewQuoteBook()
	book.SetQuote(quote("max", "BTCTWD", 102, 100, 2.0, 2.0))
	book.SetQuote(quote("binance", "BTCTWD", 103, 101, 2.0, 2.0))

	d := NewCrossVenue(crossVenueConfig(), testLogger())
	opps, err := d.Detect(context.Background(), book)
	require.NoError(t, err)
	require.Len(t, opps, 1, "a crossed book must yield one opportunity per venue pair")

	opp := opps[0]
	require.Len(t, opp.Legs, 2)
	assert.Equal(t, "max", opp.Legs[0].Venue)
	assert.InDelta(t, 100.0, opp.Legs[0].Price, 1e-9)
	assert.Equal(t, "binance", opp.Legs[1].Venue)
	assert.InDelta(t, 103.0, opp.Legs[1].Price, 1e-9)
	assert.InDelta(t, 3.0/100, opp.ProfitPct, 1e-9)
}

func TestCrossVenueCapitalCap(t *testing.T) {
	cfg := crossVenueConfig()
	cfg.MaxCapital = 350_000 // one tenth of a coin at the buy price

	book := NewQuoteBook()
	book.SetQuote(quote("max", "BTCTWD", 3_498_000, 3_500_000, 5.0, 5.0))
	book.SetQuote(quote("binance", "BTCTWD", 3_512_000, 3_514_000, 5.0, 5.0))

	d := NewCrossVenue(cfg, testLogger())
	opps, err := d.Detect(context.Background(), book)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.InDelta(t, 0.1, opps[0].Volume, 1e-9)
	assert.InDelta(t, 350_000, opps[0].RequiredCapital, 1e-6)
}

func TestCrossVenueSkipsStaleQuotes(t *testing.T) {
	book := NewQuoteBook()
	stale := quote("max", "BTCTWD", 3_498_000, 3_500_000, 2.0, 2.0)
	stale.Timestamp = time.Now().Add(-time.Minute)
	book.SetQuote(stale)
	book.SetQuote(quote("binance", "BTCTWD", 3_512_000, 3_514_000, 2.0, 2.0))

	d := NewCrossVenue(crossVenueConfig(), testLogger())
	opps, err := d.Detect(context.Background(), book)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestCrossVenueMissingQuote(t *testing.T) {
	book := NewQuoteBook()
	book.SetQuote(quote("max", "BTCTWD", 3_498_000, 3_500_000, 2.0, 2.0))

	d := NewCrossVenue(crossVenueConfig(), testLogger())
	opps, err := d.Detect(context.Background(), book)
	require.NoError(t, err)
	assert.Empty(t, opps)
}
