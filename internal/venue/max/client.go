// Package max is the client for the MAX exchange (maicoin.com): public
// market data over REST and WebSocket, plus HMAC-authenticated private
// endpoints.
package max

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/winyoulife/arbengine/internal/crypto"
	"github.com/winyoulife/arbengine/internal/domain"
	"github.com/winyoulife/arbengine/internal/venue"
)

// DefaultBaseURL is the production REST API root.
const DefaultBaseURL = "https://max-api.maicoin.com"

// depthLimit bounds the number of book levels fetched per side. Only the
// best level is used for quotes; a few extra levels absorb dust orders.
const depthLimit = 5

// Client is the REST client for the MAX exchange API.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	httpClient *http.Client
}

var _ venue.PairSource = (*Client)(nil)

// NewClient creates a REST client. auth may be nil for public-only use;
// private endpoints then return domain.ErrUnauthorized.
func NewClient(baseURL string, auth *crypto.HMACAuth) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Quote fetches the order book for pair and returns the best bid/ask with
// their volumes.
func (c *Client) Quote(ctx context.Context, pair string) (domain.PriceQuote, error) {
	depth, err := c.Depth(ctx, pair)
	if err != nil {
		return domain.PriceQuote{}, err
	}
	return depthToQuote("max", pair, depth)
}

// Ticker fetches the public ticker for pair.
func (c *Client) Ticker(ctx context.Context, pair string) (Ticker, error) {
	path := "/api/v2/tickers/" + url.PathEscape(marketID(pair))

	body, err := c.doPublic(ctx, path, nil)
	if err != nil {
		return Ticker{}, fmt.Errorf("max: get ticker %s: %w", pair, err)
	}

	var t Ticker
	if err := json.Unmarshal(body, &t); err != nil {
		return Ticker{}, fmt.Errorf("max: decode ticker %s: %w", pair, err)
	}
	return t, nil
}

// Depth fetches the public order book for pair.
func (c *Client) Depth(ctx context.Context, pair string) (Depth, error) {
	params := url.Values{}
	params.Set("market", marketID(pair))
	params.Set("limit", strconv.Itoa(depthLimit))

	body, err := c.doPublic(ctx, "/api/v2/depth", params)
	if err != nil {
		return Depth{}, fmt.Errorf("max: get depth %s: %w", pair, err)
	}

	var d Depth
	if err := json.Unmarshal(body, &d); err != nil {
		return Depth{}, fmt.Errorf("max: decode depth %s: %w", pair, err)
	}
	return d, nil
}

// Accounts fetches the authenticated member's balances.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	body, err := c.doSigned(ctx, "/api/v2/members/accounts")
	if err != nil {
		return nil, fmt.Errorf("max: get accounts: %w", err)
	}

	var accounts []Account
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("max: decode accounts: %w", err)
	}
	return accounts, nil
}

// doPublic sends an unauthenticated GET request and reads the body.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// doSigned sends a GET request with the HMAC auth headers attached.
func (c *Client) doSigned(ctx context.Context, path string) ([]byte, error) {
	if c.auth == nil {
		return nil, domain.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	headers, err := c.auth.Headers(path, nil)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx responses to errors, decoding the exchange error
// envelope when present.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr APIError
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("max: %s (code %d): %w", apiErr.Err.Message, apiErr.Err.Code, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("max: %s (code %d): %w", apiErr.Err.Message, apiErr.Err.Code, domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("max: rate limited: %s (code %d)", apiErr.Err.Message, apiErr.Err.Code)
	default:
		return fmt.Errorf("max: HTTP %d: %s (code %d)", statusCode, apiErr.Err.Message, apiErr.Err.Code)
	}
}
