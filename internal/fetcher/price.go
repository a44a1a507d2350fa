package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const tickerPricePath = "/api/v3/ticker/price"

// PriceOptions parameterise the spot ticker fetcher.
type PriceOptions struct {
	BaseURL   string
	Symbol    string
	Timeout   time.Duration
	UserAgent string
}

// Price polls a spot ticker endpoint returning {"price": "<decimal>"}.
type Price struct {
	opts    PriceOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewPrice constructs a price fetcher.
func NewPrice(opts PriceOptions, logger zerolog.Logger) *Price {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}

	return &Price{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger.With().Str("component", "price_fetcher").Logger(),
	}
}

// FetchPrice retrieves and parses the current price. Every failure mode
// surfaces as a *PriceFetchError.
func (p *Price) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s%s?symbol=%s", p.baseURL, tickerPricePath, url.QueryEscape(p.opts.Symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, &PriceFetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, &PriceFetchError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, &PriceFetchError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, &PriceFetchError{
			Err: fmt.Errorf("ticker status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
		}
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return decimal.Decimal{}, &PriceFetchError{Err: err}
	}
	if ticker.Price == "" {
		return decimal.Decimal{}, &PriceFetchError{Err: errors.New("ticker response missing price field")}
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Decimal{}, &PriceFetchError{Err: fmt.Errorf("parse price %q: %w", ticker.Price, err)}
	}

	p.logger.Debug().Str("symbol", p.opts.Symbol).Str("price", price.String()).Msg("price fetched")
	return price, nil
}

var _ PriceFetcher = (*Price)(nil)
