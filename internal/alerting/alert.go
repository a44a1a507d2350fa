package alerting

import (
	"time"

	"github.com/shopspring/decimal"

	"liquidation-zone-alerts/internal/proximity"
)

// DeliveryStatus summarises the outcome of one dispatch.
type DeliveryStatus string

const (
	StatusSuccess DeliveryStatus = "success"
	StatusPartial DeliveryStatus = "partial"
	StatusFailed  DeliveryStatus = "failed"
)

// Alert 封装一次待推送的爆仓区间告警。Channels never mutate it; the
// dispatcher and history writer fill in the delivery fields.
type Alert struct {
	ID             int64
	Timestamp      time.Time
	Symbol         string
	CurrentPrice   decimal.Decimal
	ZonePrice      decimal.Decimal
	ZoneDensity    decimal.Decimal
	ZoneSide       string
	DistancePct    decimal.Decimal
	Severity       proximity.Severity
	Message        string
	ChannelsSent   []string
	DeliveryStatus DeliveryStatus
	ErrorMessage   string
}

// ChannelResult is the tagged outcome of a single channel send. Channels
// return it instead of raising; a failure is data, not control flow.
type ChannelResult struct {
	Success      bool
	ChannelName  string
	ErrorMessage string
	ResponseData map[string]any
}

// DispatchResult aggregates the per-channel outcomes of one dispatch.
type DispatchResult struct {
	Status         DeliveryStatus
	ChannelsSent   []string
	ChannelsFailed []string
	ErrorMessage   string
}
