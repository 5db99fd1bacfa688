package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjannette/cryptovest-backend/internal/httputil"
	"github.com/kjannette/cryptovest-backend/internal/models"
	"github.com/shopspring/decimal"
)

const defaultCoinGeckoBase = "https://api.coingecko.com"

// coinGeckoIDs maps platform symbols to CoinGecko asset ids.
var coinGeckoIDs = map[models.Symbol]string{
	models.BTC:  "bitcoin",
	models.ETH:  "ethereum",
	models.SOL:  "solana",
	models.USDT: "tether",
}

// FallbackPrices are served when CoinGecko is unreachable and nothing has
// been recorded yet.
var FallbackPrices = map[models.Symbol]decimal.Decimal{
	models.BTC:  decimal.NewFromInt(30000),
	models.ETH:  decimal.NewFromInt(2000),
	models.SOL:  decimal.NewFromInt(30),
	models.USDT: decimal.NewFromInt(1),
}

type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

type CoinGeckoOptions struct {
	BaseURL string
	Retry   *httputil.RetryConfig
}

func NewCoinGeckoClient(opts CoinGeckoOptions) *CoinGeckoClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultCoinGeckoBase
	}
	retry := httputil.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    10 * time.Second,
	}
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &CoinGeckoClient{
		baseURL:    base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry:      retry,
	}
}

// GetPrices returns USD spot prices for every supported coin. A coin missing
// from the response is an error so callers can fall back as a whole.
func (c *CoinGeckoClient) GetPrices(ctx context.Context) ([]models.CoinPrice, error) {
	ids := make([]string, 0, len(models.Symbols))
	for _, s := range models.Symbols {
		ids = append(ids, coinGeckoIDs[s])
	}
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/api/v3/simple/price?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var data map[string]struct {
		USD decimal.Decimal `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	now := time.Now().UTC()
	out := make([]models.CoinPrice, 0, len(models.Symbols))
	for _, s := range models.Symbols {
		entry, ok := data[coinGeckoIDs[s]]
		if !ok || !entry.USD.IsPositive() {
			return nil, fmt.Errorf("invalid price for %s", s.Upper())
		}
		out = append(out, models.CoinPrice{Coin: s, USD: entry.USD, Source: "coingecko", RecordedAt: now})
	}
	return out, nil
}

// Fallback returns the static fallback quotes.
func Fallback() []models.CoinPrice {
	now := time.Now().UTC()
	out := make([]models.CoinPrice, 0, len(models.Symbols))
	for _, s := range models.Symbols {
		out = append(out, models.CoinPrice{Coin: s, USD: FallbackPrices[s], Source: "fallback", RecordedAt: now})
	}
	return out
}
