package proximity

import (
	"github.com/shopspring/decimal"
)

// Side labels for the dominant liquidation direction at a zone.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Zone is a price level carrying aggregated long/short liquidation density.
type Zone struct {
	Price        decimal.Decimal
	LongDensity  decimal.Decimal
	ShortDensity decimal.Decimal
}

// TotalDensity returns the combined USD density at this level.
func (z Zone) TotalDensity() decimal.Decimal {
	return z.LongDensity.Add(z.ShortDensity)
}

// DominantSide returns the side holding the greater density. Ties go short.
func (z Zone) DominantSide() string {
	if z.LongDensity.GreaterThan(z.ShortDensity) {
		return SideLong
	}
	return SideShort
}
