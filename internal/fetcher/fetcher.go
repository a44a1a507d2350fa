package fetcher

import (
	"context"

	"github.com/shopspring/decimal"

	"liquidation-zone-alerts/internal/proximity"
)

// PriceFetcher retrieves the current traded price for the watched symbol.
type PriceFetcher interface {
	FetchPrice(ctx context.Context) (decimal.Decimal, error)
}

// ZoneFetcher retrieves the latest liquidation-zone snapshot.
type ZoneFetcher interface {
	FetchZones(ctx context.Context) ([]proximity.Zone, error)
}

// PriceFetchError wraps any failure to obtain a usable price.
type PriceFetchError struct {
	Err error
}

func (e *PriceFetchError) Error() string { return "fetch price: " + e.Err.Error() }

func (e *PriceFetchError) Unwrap() error { return e.Err }

// ZoneFetchError wraps any failure to obtain the zone snapshot.
type ZoneFetchError struct {
	Err error
}

func (e *ZoneFetchError) Error() string { return "fetch zones: " + e.Err.Error() }

func (e *ZoneFetchError) Unwrap() error { return e.Err }
