// internal/exchange/client.go
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://api.binance.com"
	defaultRecvWindow = 5000
	maxReadRetries    = 3
)

// Client is a Binance spot REST client covering the calls the trading loop
// needs: 24h ticker statistics, spot prices, the account balance and market
// order placement. Read calls are retried with exponential backoff; order
// submission is performed exactly once (a blind retry could double an order).
//
// Credentials live only in this struct for the session's lifetime and are
// never logged.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int64
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint (used by tests and testnet runs).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a Client with a connection-pooled transport.
func NewClient(apiKey, apiSecret string, logger *zap.Logger, opts ...Option) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: defaultRecvWindow,
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		logger:     logger.Named("exchange"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies the exchange is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.getRetry(ctx, "/api/v3/ping", nil, false)
	if err != nil {
		return fmt.Errorf("%w: ping: %s", ErrMarketDataUnavailable, err)
	}
	return nil
}

// Ticker24h returns 24h statistics for all symbols.
func (c *Client) Ticker24h(ctx context.Context) ([]Ticker, error) {
	body, err := c.getRetry(ctx, "/api/v3/ticker/24hr", nil, false)
	if err != nil {
		return nil, fmt.Errorf("%w: ticker/24hr: %s", ErrMarketDataUnavailable, err)
	}

	var raw []struct {
		Symbol             string `json:"symbol"`
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode ticker/24hr: %s", ErrMarketDataUnavailable, err)
	}

	tickers := make([]Ticker, 0, len(raw))
	for _, r := range raw {
		price, err := decimal.NewFromString(r.LastPrice)
		if err != nil {
			continue
		}
		pct, err := strconv.ParseFloat(r.PriceChangePercent, 64)
		if err != nil {
			continue
		}
		tickers = append(tickers, Ticker{
			Symbol:             r.Symbol,
			LastPrice:          price,
			PriceChangePercent: pct,
		})
	}
	return tickers, nil
}

// Price returns the latest spot price for one symbol.
func (c *Client) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"symbol": {symbol}}
	body, err := c.getRetry(ctx, "/api/v3/ticker/price", params, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %s: %s", ErrMarketDataUnavailable, symbol, err)
	}

	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode price %s: %s", ErrMarketDataUnavailable, symbol, err)
	}
	price, err := decimal.NewFromString(raw.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: parse price %s: %s", ErrMarketDataUnavailable, symbol, err)
	}
	return price, nil
}

// AccountBalance returns the free balance of one asset. This is an
// idempotent read and is retried.
func (c *Client) AccountBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	body, err := c.getRetry(ctx, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return decimal.Zero, fmt.Errorf("account balance: %w", err)
	}

	var raw struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, fmt.Errorf("decode account: %w", err)
	}

	for _, b := range raw.Balances {
		if b.Asset == asset {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse balance %s: %w", asset, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

// PlaceMarketOrder submits a market order. A BUY spends quoteAmount of the
// quote asset (quoteOrderQty); a SELL disposes of quantity of the base
// asset. The call is made exactly once; any failure or non-FILLED status is
// returned to the caller untouched so it can classify the rejection.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side Side, quoteAmount, quantity decimal.Decimal) (*OrderResult, error) {
	params := url.Values{
		"symbol": {symbol},
		"side":   {string(side)},
		"type":   {"MARKET"},
	}
	switch side {
	case SideBuy:
		params.Set("quoteOrderQty", quoteAmount.String())
	case SideSell:
		params.Set("quantity", quantity.String())
	default:
		return nil, fmt.Errorf("unsupported order side %q", side)
	}

	body, err := c.do(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, fmt.Errorf("place %s %s: %w", side, symbol, err)
	}

	var raw struct {
		Symbol           string `json:"symbol"`
		Status           string `json:"status"`
		ExecutedQty      string `json:"executedQty"`
		CummulativeQuote string `json:"cummulativeQuoteQty"`
		Fills            []struct {
			Price string `json:"price"`
			Qty   string `json:"qty"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	executed, err := decimal.NewFromString(raw.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("parse executedQty: %w", err)
	}
	quote, err := decimal.NewFromString(raw.CummulativeQuote)
	if err != nil {
		return nil, fmt.Errorf("parse cummulativeQuoteQty: %w", err)
	}

	result := &OrderResult{
		Symbol:           raw.Symbol,
		Side:             side,
		ExecutedQty:      executed,
		CummulativeQuote: quote,
		Status:           raw.Status,
	}

	// Average fill price from the quote volume; fall back to the first fill
	// when the exchange reports zero executed quantity.
	if executed.IsPositive() {
		result.AvgFillPrice = quote.Div(executed)
	} else if len(raw.Fills) > 0 {
		if p, err := decimal.NewFromString(raw.Fills[0].Price); err == nil {
			result.AvgFillPrice = p
		}
	}
	return result, nil
}

// getRetry performs a GET with bounded exponential backoff. Only reads go
// through here.
func (c *Client) getRetry(ctx context.Context, path string, params url.Values, signed bool) ([]byte, error) {
	operation := func() ([]byte, error) {
		body, err := c.do(ctx, http.MethodGet, path, params, signed)
		if err != nil {
			var apiErr *APIError
			// Exchange-side rejections of a read (bad symbol, bad key) will
			// not heal on retry.
			if errors.As(err, &apiErr) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return body, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxReadRetries))
}

// do performs a single HTTP request, signing it when required. The
// caller's params are never mutated: each attempt stamps and signs a
// fresh copy, so a retried signed read never signs over the previous
// attempt's signature parameter.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	query := url.Values{}
	for key, vals := range params {
		query[key] = append([]string(nil), vals...)
	}
	if signed {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
		// The signature covers the encoded query without the signature
		// key itself.
		query.Set("signature", c.sign(query.Encode()))
	}

	reqURL := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if signed || c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{}
		if jsonErr := json.Unmarshal(body, apiErr); jsonErr == nil && apiErr.Message != "" {
			return nil, apiErr
		}
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}
	return body, nil
}

// sign computes the HMAC-SHA256 signature over the encoded query string.
func (c *Client) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
