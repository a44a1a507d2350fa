package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"liquidation-zone-alerts/internal/cooldown"
	"liquidation-zone-alerts/internal/fetcher"
	"liquidation-zone-alerts/internal/proximity"
	"liquidation-zone-alerts/internal/service"
)

// SimulateOptions describe one synthetic zone approach.
type SimulateOptions struct {
	Price        decimal.Decimal
	ZonePrice    decimal.Decimal
	LongDensity  decimal.Decimal
	ShortDensity decimal.Decimal
}

// SimulateAlert 以给定价格与区间构造一次完整的评估与派发流程。
// Rate-limit state lives in memory only; nothing is persisted.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	dispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}
	if len(a.newChannels()) == 0 {
		return errors.New("未配置任何告警通道")
	}

	prices := &staticPriceFetcher{price: opts.Price}
	zones := &staticZoneFetcher{zones: []proximity.Zone{{
		Price:        opts.ZonePrice,
		LongDensity:  opts.LongDensity,
		ShortDensity: opts.ShortDensity,
	}}}

	manager := a.newCooldownManager(newMemCooldownStore())

	svc := service.New(a.Config, nil, prices, zones, manager, dispatcher, nil, a.Logger)

	tick := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessTick(ctx, tick)
}

type staticPriceFetcher struct {
	price decimal.Decimal
}

func (s *staticPriceFetcher) FetchPrice(ctx context.Context) (decimal.Decimal, error) {
	return s.price, nil
}

type staticZoneFetcher struct {
	zones []proximity.Zone
}

func (s *staticZoneFetcher) FetchZones(ctx context.Context) ([]proximity.Zone, error) {
	return s.zones, nil
}

// memCooldownStore is a throwaway in-memory rate-limit store for the
// simulate path.
type memCooldownStore struct {
	mu    sync.Mutex
	rows  map[string]cooldown.Cooldown
	count int
	reset time.Time
}

func newMemCooldownStore() *memCooldownStore {
	return &memCooldownStore{rows: make(map[string]cooldown.Cooldown)}
}

func (m *memCooldownStore) GetCooldown(ctx context.Context, zoneKey string) (*cooldown.Cooldown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[zoneKey]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memCooldownStore) UpsertCooldown(ctx context.Context, zoneKey string, at time.Time, today time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[zoneKey]
	if row.LastResetDate.Before(today) {
		row.AlertCountToday = 0
	}
	row.ZoneKey = zoneKey
	row.LastAlertTime = at
	row.AlertCountToday++
	row.LastResetDate = today
	m.rows[zoneKey] = row
	return nil
}

func (m *memCooldownStore) DailyCount(ctx context.Context, today time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reset.Before(today) {
		m.count = 0
		m.reset = today
	}
	return m.count, nil
}

func (m *memCooldownStore) IncrementDailyCount(ctx context.Context, today time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reset.Before(today) {
		m.count = 0
		m.reset = today
	}
	m.count++
	return m.count, nil
}

var _ fetcher.PriceFetcher = (*staticPriceFetcher)(nil)
var _ fetcher.ZoneFetcher = (*staticZoneFetcher)(nil)
var _ cooldown.Store = (*memCooldownStore)(nil)
