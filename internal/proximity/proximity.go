package proximity

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice indicates a zero current price; no distance can be derived.
var ErrInvalidPrice = errors.New("proximity: current price must be non-zero")

// Direction labels for a zone relative to current price.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

var (
	dec100        = decimal.NewFromInt(100)
	keyBucketSize = decimal.NewFromInt(100)
)

// ZoneProximity captures the relation between current price and one zone.
// Instances are built fresh per evaluation cycle and never persisted.
type ZoneProximity struct {
	Zone         Zone
	CurrentPrice decimal.Decimal
	DistancePct  decimal.Decimal
	Direction    string
}

// Compute derives distance and direction for a zone at the given price.
func Compute(zone Zone, currentPrice decimal.Decimal) (ZoneProximity, error) {
	if currentPrice.IsZero() {
		return ZoneProximity{}, ErrInvalidPrice
	}

	distance := zone.Price.Sub(currentPrice).Abs().Div(currentPrice).Mul(dec100).Round(2)

	// Zones sitting exactly at the current price count as below.
	direction := DirectionBelow
	if zone.Price.GreaterThan(currentPrice) {
		direction = DirectionAbove
	}

	return ZoneProximity{
		Zone:         zone,
		CurrentPrice: currentPrice,
		DistancePct:  distance,
		Direction:    direction,
	}, nil
}

// ZoneKey buckets the zone price to the nearest 100 and appends the
// dominant side, e.g. "94500_short". Used as the cooldown partition key.
func (p ZoneProximity) ZoneKey() string {
	bucket := p.Zone.Price.Div(keyBucketSize).Floor().Mul(keyBucketSize)
	return fmt.Sprintf("%s_%s", bucket.StringFixed(0), p.Zone.DominantSide())
}

// Tier gates one severity level by maximum distance and minimum density.
type Tier struct {
	DistancePct decimal.Decimal
	MinDensity  decimal.Decimal
}

// Matches reports whether the proximity falls inside this tier.
func (t Tier) Matches(p ZoneProximity) bool {
	return p.DistancePct.LessThanOrEqual(t.DistancePct) &&
		p.Zone.TotalDensity().GreaterThanOrEqual(t.MinDensity)
}

// Thresholds holds the three severity tiers. Validated once at load;
// the classifier assumes monotonic distances afterwards.
type Thresholds struct {
	Critical Tier
	Warning  Tier
	Info     Tier
}

// Validate enforces 0 < distance <= 100 per tier, non-negative density,
// and strictly increasing distances from critical to info.
func (t Thresholds) Validate() error {
	tiers := []struct {
		name string
		tier Tier
	}{
		{"critical", t.Critical},
		{"warning", t.Warning},
		{"info", t.Info},
	}
	for _, entry := range tiers {
		if !entry.tier.DistancePct.IsPositive() || entry.tier.DistancePct.GreaterThan(dec100) {
			return fmt.Errorf("threshold %s: distance_pct must be in (0, 100]", entry.name)
		}
		if entry.tier.MinDensity.IsNegative() {
			return fmt.Errorf("threshold %s: min_density cannot be negative", entry.name)
		}
	}
	if !t.Critical.DistancePct.LessThan(t.Warning.DistancePct) ||
		!t.Warning.DistancePct.LessThan(t.Info.DistancePct) {
		return errors.New("threshold distances must strictly increase from critical to info")
	}
	return nil
}

// Classify returns the first tier matching the proximity, checking
// critical, warning, then info. The second return is false when no tier
// matches. With validated thresholds a proximity satisfying a stricter
// tier can never be classified weaker.
func Classify(p ZoneProximity, thresholds Thresholds) (Severity, bool) {
	switch {
	case thresholds.Critical.Matches(p):
		return SeverityCritical, true
	case thresholds.Warning.Matches(p):
		return SeverityWarning, true
	case thresholds.Info.Matches(p):
		return SeverityInfo, true
	}
	return "", false
}
