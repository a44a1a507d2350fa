package cooldown

import (
	"context"
	"errors"
	"time"
)

// ErrStoreBusy marks a transient contention failure from the persisted
// store. Implementations wrap lock/serialization conflicts with it so the
// manager can retry instead of dropping the write.
var ErrStoreBusy = errors.New("cooldown store busy")

// Cooldown is the persisted per-zone rate-limit row.
type Cooldown struct {
	ZoneKey         string
	LastAlertTime   time.Time
	AlertCountToday int
	LastResetDate   time.Time
}

// Store persists per-zone cooldowns and the process-wide daily counter.
// The counter operations take the current UTC date and lazily reset the
// stored count when the persisted reset date is older.
type Store interface {
	GetCooldown(ctx context.Context, zoneKey string) (*Cooldown, error)
	UpsertCooldown(ctx context.Context, zoneKey string, at time.Time, today time.Time) error
	DailyCount(ctx context.Context, today time.Time) (int, error)
	IncrementDailyCount(ctx context.Context, today time.Time) (int, error)
}

// UTCDay truncates a timestamp to its UTC calendar day.
func UTCDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
