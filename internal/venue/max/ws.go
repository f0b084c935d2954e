package max

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/winyoulife/arbengine/internal/domain"
)

// DefaultWsURL is the production WebSocket endpoint.
const DefaultWsURL = "wss://max-stream.maicoin.com/ws"

const (
	wsWriteWait         = 10 * time.Second
	wsPongWait          = 60 * time.Second
	wsPingPeriod        = (wsPongWait * 9) / 10
	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// QuoteHandler receives the best bid/ask derived from each book update.
type QuoteHandler func(ctx context.Context, q domain.PriceQuote)

// BookStream subscribes to the exchange book channel for a set of pairs and
// emits a quote whenever a best level changes. It reconnects with
// exponential backoff on disconnect.
type BookStream struct {
	wsURL   string
	pairs   []string
	onQuote QuoteHandler
	logger  *slog.Logger

	// books holds per-market price level maps, rebuilt from snapshots and
	// patched by updates. Only the read loop goroutine touches them.
	books map[string]*bookState
}

type bookState struct {
	pair string
	asks map[string]float64
	bids map[string]float64
}

// wsCommand is the subscribe frame.
type wsCommand struct {
	Action        string           `json:"action"`
	Subscriptions []wsSubscription `json:"subscriptions"`
	ID            string           `json:"id,omitempty"`
}

type wsSubscription struct {
	Channel string `json:"channel"`
	Market  string `json:"market"`
	Depth   int    `json:"depth,omitempty"`
}

// wsBookMessage is an incoming book snapshot or delta. Price levels are
// [price, volume] string pairs; a zero volume removes the level.
type wsBookMessage struct {
	Channel string      `json:"c"`
	Market  string      `json:"M"`
	Event   string      `json:"e"`
	Asks    [][2]string `json:"a"`
	Bids    [][2]string `json:"b"`
	Time    int64       `json:"T"`
}

// NewBookStream creates a stream for the given pairs. onQuote is invoked
// from the read loop; handlers must not block.
func NewBookStream(wsURL string, pairs []string, onQuote QuoteHandler, logger *slog.Logger) *BookStream {
	if wsURL == "" {
		wsURL = DefaultWsURL
	}
	return &BookStream{
		wsURL:   wsURL,
		pairs:   pairs,
		onQuote: onQuote,
		logger:  logger.With(slog.String("component", "max_book_stream")),
		books:   make(map[string]*bookState),
	}
}

// Run connects, subscribes, and processes book messages until ctx is
// cancelled. Disconnects trigger a reconnect with exponential backoff.
func (s *BookStream) Run(ctx context.Context) error {
	if len(s.pairs) == 0 {
		s.logger.Info("no pairs to subscribe, exiting")
		return nil
	}

	delay := wsReconnectDelay
	for {
		err := s.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("book stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}

// runConnection dials, subscribes, and reads until the connection breaks or
// ctx is cancelled.
func (s *BookStream) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("max: ws connect: %w", err)
	}
	defer conn.Close()

	// Local books are stale after a reconnect; start from fresh snapshots.
	s.books = make(map[string]*bookState)

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	if err := s.subscribe(conn); err != nil {
		return err
	}
	s.logger.Info("book stream subscribed", slog.Int("pairs", len(s.pairs)))

	// Close the connection when ctx is cancelled so ReadMessage unblocks.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
	})
	defer stop()

	go s.pingLoop(ctx, conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("max: ws read: %w", domain.ErrWSDisconnect)
		}
		s.handleMessage(ctx, raw)
	}
}

func (s *BookStream) subscribe(conn *websocket.Conn) error {
	subs := make([]wsSubscription, 0, len(s.pairs))
	for _, pair := range s.pairs {
		subs = append(subs, wsSubscription{
			Channel: "book",
			Market:  marketID(pair),
			Depth:   depthLimit,
		})
		s.books[marketID(pair)] = &bookState{
			pair: pair,
			asks: make(map[string]float64),
			bids: make(map[string]float64),
		}
	}

	cmd := wsCommand{Action: "sub", Subscriptions: subs, ID: "arbengine"}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("max: marshal subscribe: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("max: ws subscribe: %w", err)
	}
	return nil
}

func (s *BookStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage applies a book snapshot or delta and emits the new best
// bid/ask. Non-book frames (subscription acks, errors) are dropped.
func (s *BookStream) handleMessage(ctx context.Context, raw []byte) {
	var msg wsBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Channel != "book" {
		return
	}

	book, ok := s.books[msg.Market]
	if !ok {
		return
	}

	if msg.Event == "snapshot" {
		book.asks = make(map[string]float64)
		book.bids = make(map[string]float64)
	}
	applyLevels(book.asks, msg.Asks)
	applyLevels(book.bids, msg.Bids)

	q, ok := book.quote(time.UnixMilli(msg.Time))
	if !ok {
		return
	}
	if s.onQuote != nil {
		s.onQuote(ctx, q)
	}
}

// applyLevels patches a side of the book. Zero volume removes the level.
func applyLevels(side map[string]float64, levels [][2]string) {
	for _, level := range levels {
		vol, err := strconv.ParseFloat(level[1], 64)
		if err != nil {
			continue
		}
		if vol == 0 {
			delete(side, level[0])
		} else {
			side[level[0]] = vol
		}
	}
}

// quote returns the current best bid/ask, or ok=false when either side of
// the book is empty.
func (b *bookState) quote(ts time.Time) (domain.PriceQuote, bool) {
	q := domain.PriceQuote{
		Venue:     "max",
		Pair:      b.pair,
		Timestamp: ts,
	}

	for priceStr, vol := range b.asks {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		if q.Ask == 0 || price < q.Ask {
			q.Ask = price
			q.AskVolume = vol
		}
	}
	for priceStr, vol := range b.bids {
		price, err := strconv.ParseFloat(priceStr, 64)
		if err != nil {
			continue
		}
		if price > q.Bid {
			q.Bid = price
			q.BidVolume = vol
		}
	}

	if q.Bid == 0 || q.Ask == 0 {
		return domain.PriceQuote{}, false
	}
	return q, true
}
