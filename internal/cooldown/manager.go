package cooldown

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Options tune the rate-limiting and retry behaviour.
type Options struct {
	PerZone        time.Duration
	MaxDailyAlerts int
	MaxAttempts    int
	RetryDelay     time.Duration
}

// Manager gates alert emission per zone bucket and per UTC day. A zone is
// cooling from the moment RecordAlert succeeds until PerZone has elapsed.
type Manager struct {
	store  Store
	opts   Options
	logger zerolog.Logger
}

// NewManager constructs a cooldown manager over the given store.
func NewManager(store Store, opts Options, logger zerolog.Logger) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 100 * time.Millisecond
	}
	return &Manager{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "cooldown").Logger(),
	}
}

// IsOnCooldown reports whether the zone bucket alerted within PerZone.
func (m *Manager) IsOnCooldown(ctx context.Context, zoneKey string) (bool, error) {
	row, err := m.store.GetCooldown(ctx, zoneKey)
	if err != nil {
		return false, fmt.Errorf("get cooldown %s: %w", zoneKey, err)
	}
	if row == nil {
		return false, nil
	}
	return time.Now().UTC().Sub(row.LastAlertTime) < m.opts.PerZone, nil
}

// CanSendAlert reports whether the daily cap still has headroom. The
// stored counter is lazily reset when the UTC date has advanced.
func (m *Manager) CanSendAlert(ctx context.Context) (bool, error) {
	today := UTCDay(time.Now())

	var count int
	err := m.withRetry(ctx, "daily count", func(ctx context.Context) error {
		var opErr error
		count, opErr = m.store.DailyCount(ctx, today)
		return opErr
	})
	if err != nil {
		return false, err
	}
	return count < m.opts.MaxDailyAlerts, nil
}

// RecordAlert marks the zone bucket as alerted now and bumps the daily
// counter. Both writes go through the bounded retry path.
func (m *Manager) RecordAlert(ctx context.Context, zoneKey string) error {
	now := time.Now().UTC()
	today := UTCDay(now)

	err := m.withRetry(ctx, "upsert cooldown", func(ctx context.Context) error {
		return m.store.UpsertCooldown(ctx, zoneKey, now, today)
	})
	if err != nil {
		return err
	}

	return m.withRetry(ctx, "increment daily count", func(ctx context.Context) error {
		_, opErr := m.store.IncrementDailyCount(ctx, today)
		return opErr
	})
}

// withRetry runs op, retrying ErrStoreBusy with a fixed delay up to
// MaxAttempts, then surfaces a terminal error.
func (m *Manager) withRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrStoreBusy) {
			return fmt.Errorf("%s: %w", name, lastErr)
		}

		m.logger.Warn().Int("attempt", attempt).Str("op", name).Msg("cooldown store busy; retrying")

		if attempt == m.opts.MaxAttempts {
			break
		}
		timer := time.NewTimer(m.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%s: store busy after %d attempts: %w", name, m.opts.MaxAttempts, lastErr)
}
