package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"liquidation-zone-alerts/internal/cooldown"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	getCooldownSQL = `SELECT zone_key, last_alert_time, alert_count_today, last_reset_date
    FROM alert_cooldowns
    WHERE zone_key = $1;`

	upsertCooldownSQL = `INSERT INTO alert_cooldowns (
        zone_key,
        last_alert_time,
        alert_count_today,
        last_reset_date
    ) VALUES (
        $1, $2, 1, $3
    )
    ON CONFLICT (zone_key) DO UPDATE
    SET
        last_alert_time   = EXCLUDED.last_alert_time,
        alert_count_today = CASE
            WHEN alert_cooldowns.last_reset_date < EXCLUDED.last_reset_date THEN 1
            ELSE alert_cooldowns.alert_count_today + 1
        END,
        last_reset_date   = EXCLUDED.last_reset_date;`

	dailyCountSQL = `INSERT INTO alert_daily_counter (id, count, reset_date)
    VALUES (1, 0, $1)
    ON CONFLICT (id) DO UPDATE
    SET count = CASE
            WHEN alert_daily_counter.reset_date < EXCLUDED.reset_date THEN 0
            ELSE alert_daily_counter.count
        END,
        reset_date = GREATEST(alert_daily_counter.reset_date, EXCLUDED.reset_date)
    RETURNING count;`

	incrementDailyCountSQL = `INSERT INTO alert_daily_counter (id, count, reset_date)
    VALUES (1, 1, $1)
    ON CONFLICT (id) DO UPDATE
    SET count = CASE
            WHEN alert_daily_counter.reset_date < EXCLUDED.reset_date THEN 1
            ELSE alert_daily_counter.count + 1
        END,
        reset_date = GREATEST(alert_daily_counter.reset_date, EXCLUDED.reset_date)
    RETURNING count;`

	insertAlertSQL = `INSERT INTO alerts (
        ts,
        symbol,
        current_price,
        zone_price,
        zone_density,
        zone_side,
        distance_pct,
        severity,
        message,
        channels_sent,
        delivery_status,
        error_message
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id;`

	listRecentAlertsSQL = `SELECT
        id,
        ts,
        symbol,
        current_price,
        zone_price,
        zone_density,
        zone_side,
        distance_pct,
        severity,
        message,
        channels_sent,
        delivery_status,
        error_message,
        created_at
    FROM alerts
    ORDER BY ts DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        ts,
        symbol,
        current_price,
        zone_price,
        zone_density,
        zone_side,
        distance_pct,
        severity,
        message,
        channels_sent,
        delivery_status,
        error_message,
        created_at
    FROM alerts
    WHERE ts >= $1
      AND ts < $2
    ORDER BY ts;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE ts < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertHistoryStore defines the append-only alert history contract.
type AlertHistoryStore interface {
	SaveAlert(ctx context.Context, record AlertRecord) (int64, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	CleanupOldAlerts(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to cooldowns, the daily counter, and history.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
// Holding it for the span of a tick keeps overlapping monitor instances
// from interleaving their check-then-record sequences.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key) // best-effort release
		conn.Release()
	}
	return unlock, true, nil
}

// GetCooldown fetches one cooldown row; nil when the zone never alerted.
func (s *Store) GetCooldown(ctx context.Context, zoneKey string) (*cooldown.Cooldown, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var row cooldown.Cooldown
	scanErr := pool.QueryRow(ctx, getCooldownSQL, zoneKey).Scan(
		&row.ZoneKey,
		&row.LastAlertTime,
		&row.AlertCountToday,
		&row.LastResetDate,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cooldown: %w", scanErr)
	}
	return &row, nil
}

// UpsertCooldown inserts or bumps the cooldown row for a zone key. The
// per-zone counter resets when the stored reset date is behind today.
func (s *Store) UpsertCooldown(ctx context.Context, zoneKey string, at time.Time, today time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertCooldownSQL, zoneKey, at, today); execErr != nil {
		return fmt.Errorf("upsert cooldown: %w", classifyBusy(execErr))
	}
	return nil
}

// DailyCount reads the daily counter, lazily resetting it when the UTC
// date has advanced past the stored reset date.
func (s *Store) DailyCount(ctx context.Context, today time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int
	if scanErr := pool.QueryRow(ctx, dailyCountSQL, today).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("daily count: %w", classifyBusy(scanErr))
	}
	return count, nil
}

// IncrementDailyCount bumps the daily counter, resetting first when the
// UTC date has advanced.
func (s *Store) IncrementDailyCount(ctx context.Context, today time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int
	if scanErr := pool.QueryRow(ctx, incrementDailyCountSQL, today).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("increment daily count: %w", classifyBusy(scanErr))
	}
	return count, nil
}

// SaveAlert appends an alert to the history log and returns its id.
func (s *Store) SaveAlert(ctx context.Context, record AlertRecord) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := pool.QueryRow(ctx, insertAlertSQL,
		record.Timestamp,
		record.Symbol,
		record.CurrentPrice.String(),
		record.ZonePrice.String(),
		record.ZoneDensity.String(),
		record.ZoneSide,
		record.DistancePct.String(),
		record.Severity,
		record.Message,
		record.ChannelsSent,
		record.DeliveryStatus,
		record.ErrorMessage,
	).Scan(&id)
	if scanErr != nil {
		return 0, fmt.Errorf("save alert: %w", scanErr)
	}
	return id, nil
}

// ListRecentAlerts lists history rows, most recent first.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AlertRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanAlertRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListAlertsBetween lists history rows within a time window in
// ascending order; used by the export surface.
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AlertRecord, 0)
	for rows.Next() {
		record, scanErr := scanAlertRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// CleanupOldAlerts removes history rows older than the cutoff and
// returns how many were deleted.
func (s *Store) CleanupOldAlerts(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("cleanup old alerts: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// classifyBusy maps contention-flavoured postgres failures onto the
// cooldown manager's retryable sentinel.
func classifyBusy(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock not available
			return fmt.Errorf("%w: %v", cooldown.ErrStoreBusy, err)
		}
	}
	return err
}

func scanAlertRecord(rows pgx.Rows) (AlertRecord, error) {
	var (
		record       AlertRecord
		currentStr   string
		zonePriceStr string
		densityStr   string
		distanceStr  string
	)

	if err := rows.Scan(
		&record.ID,
		&record.Timestamp,
		&record.Symbol,
		&currentStr,
		&zonePriceStr,
		&densityStr,
		&record.ZoneSide,
		&distanceStr,
		&record.Severity,
		&record.Message,
		&record.ChannelsSent,
		&record.DeliveryStatus,
		&record.ErrorMessage,
		&record.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	var convErr error
	record.CurrentPrice, convErr = decimal.NewFromString(currentStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse current price: %w", convErr)
	}
	record.ZonePrice, convErr = decimal.NewFromString(zonePriceStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse zone price: %w", convErr)
	}
	record.ZoneDensity, convErr = decimal.NewFromString(densityStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse zone density: %w", convErr)
	}
	record.DistancePct, convErr = decimal.NewFromString(distanceStr)
	if convErr != nil {
		return AlertRecord{}, fmt.Errorf("parse distance pct: %w", convErr)
	}

	return record, nil
}

var _ cooldown.Store = (*Store)(nil)
var _ AlertHistoryStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
