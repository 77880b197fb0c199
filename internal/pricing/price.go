package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidClientConfig = errors.New("pricing: invalid client config")
	ErrPriceUnavailable    = errors.New("pricing: price unavailable")
)

const (
	DefaultBaseURL = "https://api.binance.com"
	DefaultSymbol  = "ETHUSDT"
	// DefaultFallbackPrice is used for USD fee figures when the price source is unreachable.
	DefaultFallbackPrice = 3000.0
)

type ClientOption func(*Client) error

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		if hc == nil {
			return fmt.Errorf("%w: nil http client", ErrInvalidClientConfig)
		}
		c.hc = hc
		return nil
	}
}

func WithSymbol(symbol string) ClientOption {
	return func(c *Client) error {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalidClientConfig)
		}
		c.symbol = symbol
		return nil
	}
}

func WithFallbackPrice(p float64) ClientOption {
	return func(c *Client) error {
		if p <= 0 {
			return fmt.Errorf("%w: fallback price must be > 0", ErrInvalidClientConfig)
		}
		c.fallback = p
		return nil
	}
}

func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) error {
		if log != nil {
			c.log = log
		}
		return nil
	}
}

// Client reads a spot price from a Binance-compatible ticker endpoint.
type Client struct {
	baseURL      *url.URL
	symbol       string
	hc           *http.Client
	maxRespBytes int64
	fallback     float64
	log          *slog.Logger
}

func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrInvalidClientConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidClientConfig, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidClientConfig)
	}

	c := &Client{
		baseURL:      u,
		symbol:       DefaultSymbol,
		hc:           &http.Client{Timeout: 10 * time.Second},
		maxRespBytes: 64 << 10,
		fallback:     DefaultFallbackPrice,
		log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Price returns the current spot price of the configured symbol.
func (c *Client) Price(ctx context.Context) (float64, error) {
	if c == nil || c.baseURL == nil || c.hc == nil {
		return 0, fmt.Errorf("%w: nil client", ErrInvalidClientConfig)
	}

	u := *c.baseURL
	u.Path = joinPath(u.Path, "/api/v3/ticker/price")
	q := u.Query()
	q.Set("symbol", c.symbol)
	u.RawQuery = q.Encode()

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("pricing: build request: %w", err)
	}
	r.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(r)
	if err != nil {
		return 0, fmt.Errorf("%w: http do: %v", ErrPriceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := readAllLimited(resp.Body, c.maxRespBytes)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return 0, fmt.Errorf("%w: status %d: %s", ErrPriceUnavailable, resp.StatusCode, msg)
	}

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("%w: unmarshal response: %v", ErrPriceUnavailable, err)
	}
	p, err := strconv.ParseFloat(out.Price, 64)
	if err != nil || p <= 0 {
		return 0, fmt.Errorf("%w: bad price %q", ErrPriceUnavailable, out.Price)
	}
	return p, nil
}

// PriceOrFallback never fails; lookup errors are logged and the fallback price returned.
func (c *Client) PriceOrFallback(ctx context.Context) float64 {
	p, err := c.Price(ctx)
	if err != nil {
		c.log.Warn("price lookup failed, using fallback", "symbol", c.symbol, "fallback", c.fallback, "err", err)
		return c.fallback
	}
	return p
}

func joinPath(basePath string, suffix string) string {
	if basePath == "" {
		basePath = "/"
	}
	return path.Join(basePath, suffix)
}

func readAllLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrPriceUnavailable, err)
	}
	if int64(len(b)) > maxBytes {
		return nil, fmt.Errorf("%w: response too large", ErrPriceUnavailable)
	}
	return b, nil
}
