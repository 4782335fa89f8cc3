package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Defaults for the CoinGecko-compatible token price endpoint.
const (
	DefaultBaseURL  = "https://api.coingecko.com/api/v3"
	DefaultPlatform = "dogechain"
	DefaultCurrency = "usd"
	DefaultTimeout  = 10 * time.Second
)

// Source resolves fiat prices for token contracts. Tokens without a known
// price are absent from the result.
type Source interface {
	Prices(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error)
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP client timeout on a copy of the current client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			client := *c.httpClient
			client.Timeout = d
			c.httpClient = &client
		}
	}
}

// WithPlatform sets the asset platform path segment (e.g. dogechain).
func WithPlatform(platform string) ClientOption {
	return func(c *Client) {
		if platform != "" {
			c.platform = platform
		}
	}
}

// WithCurrency sets the target fiat currency.
func WithCurrency(currency string) ClientOption {
	return func(c *Client) {
		if currency != "" {
			c.currency = strings.ToLower(currency)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Client queries /simple/token_price on a CoinGecko-compatible API.
type Client struct {
	baseURL    string
	platform   string
	currency   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		platform:   DefaultPlatform,
		currency:   DefaultCurrency,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Currency returns the fiat currency prices are quoted in.
func (c *Client) Currency() string {
	return c.currency
}

// Prices fetches prices for all tokens in one request.
func (c *Client) Prices(ctx context.Context, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	out := make(map[common.Address]decimal.Decimal, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}

	seen := make(map[common.Address]struct{}, len(tokens))
	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		keys = append(keys, strings.ToLower(token.Hex()))
	}

	query := url.Values{}
	query.Set("contract_addresses", strings.Join(keys, ","))
	query.Set("vs_currencies", c.currency)
	endpoint := fmt.Sprintf("%s/simple/token_price/%s?%s", c.baseURL, url.PathEscape(c.platform), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("price api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	for key, quotes := range payload {
		if !common.IsHexAddress(key) {
			continue
		}
		price, ok := quotes[c.currency]
		if !ok || !price.IsPositive() {
			continue
		}
		out[common.HexToAddress(key)] = price
	}

	c.logger.Debug("prices fetched", zap.Int("requested", len(keys)), zap.Int("priced", len(out)))
	return out, nil
}
