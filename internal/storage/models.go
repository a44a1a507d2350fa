package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord is one row of the append-only alert history log.
type AlertRecord struct {
	ID             int64
	Timestamp      time.Time
	Symbol         string
	CurrentPrice   decimal.Decimal
	ZonePrice      decimal.Decimal
	ZoneDensity    decimal.Decimal
	ZoneSide       string
	DistancePct    decimal.Decimal
	Severity       string
	Message        string
	ChannelsSent   []string
	DeliveryStatus string
	ErrorMessage   string
	CreatedAt      time.Time
}
