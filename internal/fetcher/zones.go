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

	"liquidation-zone-alerts/internal/proximity"
)

const heatmapPath = "/api/v1/liq-heatmap"

// ZoneOptions parameterise the liquidation heatmap fetcher.
type ZoneOptions struct {
	BaseURL   string
	Symbol    string
	Timeout   time.Duration
	UserAgent string
	APIKey    string
}

// Zones polls a liquidation heatmap endpoint. The provider returns a
// series of snapshots; only the last (most recent) one is used.
type Zones struct {
	opts    ZoneOptions
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

// NewZones constructs a zone fetcher.
func NewZones(opts ZoneOptions, logger zerolog.Logger) *Zones {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Zones{
		opts:    opts,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		logger:  logger.With().Str("component", "zone_fetcher").Logger(),
	}
}

type heatmapLevel struct {
	Price        decimal.Decimal `json:"price"`
	LongDensity  decimal.Decimal `json:"long_density"`
	ShortDensity decimal.Decimal `json:"short_density"`
}

type heatmapSnapshot struct {
	Levels []heatmapLevel `json:"levels"`
}

type heatmapResponse struct {
	Data []heatmapSnapshot `json:"data"`
}

// FetchZones retrieves the latest zone snapshot. Every failure mode
// surfaces as a *ZoneFetchError.
func (z *Zones) FetchZones(ctx context.Context) ([]proximity.Zone, error) {
	if z.baseURL == "" {
		return nil, &ZoneFetchError{Err: errors.New("heatmap base_url not configured")}
	}

	endpoint := fmt.Sprintf("%s%s?symbol=%s", z.baseURL, heatmapPath, url.QueryEscape(z.opts.Symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ZoneFetchError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(z.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if z.opts.APIKey != "" {
		req.Header.Set("X-Api-Key", z.opts.APIKey)
	}

	resp, err := z.client.Do(req)
	if err != nil {
		return nil, &ZoneFetchError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ZoneFetchError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ZoneFetchError{
			Err: fmt.Errorf("heatmap status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))),
		}
	}

	var heatmap heatmapResponse
	if err := json.Unmarshal(payload, &heatmap); err != nil {
		return nil, &ZoneFetchError{Err: err}
	}
	if len(heatmap.Data) == 0 {
		return nil, &ZoneFetchError{Err: errors.New("heatmap response contained no snapshots")}
	}

	latest := heatmap.Data[len(heatmap.Data)-1]
	zones := make([]proximity.Zone, 0, len(latest.Levels))
	for _, level := range latest.Levels {
		zones = append(zones, proximity.Zone{
			Price:        level.Price,
			LongDensity:  level.LongDensity,
			ShortDensity: level.ShortDensity,
		})
	}

	z.logger.Debug().Int("zones", len(zones)).Int("snapshots", len(heatmap.Data)).Msg("zone snapshot fetched")
	return zones, nil
}

var _ ZoneFetcher = (*Zones)(nil)
