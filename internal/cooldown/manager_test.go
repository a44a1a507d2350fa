package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]Cooldown
	count     int
	reset     time.Time
	busyLeft  int
	upserts   int
	increment int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]Cooldown)}
}

func (f *fakeStore) failBusy() bool {
	if f.busyLeft > 0 {
		f.busyLeft--
		return true
	}
	return false
}

func (f *fakeStore) GetCooldown(ctx context.Context, zoneKey string) (*Cooldown, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[zoneKey]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeStore) UpsertCooldown(ctx context.Context, zoneKey string, at time.Time, today time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBusy() {
		return fmt.Errorf("%w: simulated lock", ErrStoreBusy)
	}
	f.upserts++
	row := f.rows[zoneKey]
	if row.LastResetDate.Before(today) {
		row.AlertCountToday = 0
	}
	row.ZoneKey = zoneKey
	row.LastAlertTime = at
	row.AlertCountToday++
	row.LastResetDate = today
	f.rows[zoneKey] = row
	return nil
}

func (f *fakeStore) DailyCount(ctx context.Context, today time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBusy() {
		return 0, fmt.Errorf("%w: simulated lock", ErrStoreBusy)
	}
	if f.reset.Before(today) {
		f.count = 0
		f.reset = today
	}
	return f.count, nil
}

func (f *fakeStore) IncrementDailyCount(ctx context.Context, today time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBusy() {
		return 0, fmt.Errorf("%w: simulated lock", ErrStoreBusy)
	}
	f.increment++
	if f.reset.Before(today) {
		f.count = 0
		f.reset = today
	}
	f.count++
	return f.count, nil
}

var _ Store = (*fakeStore)(nil)

func newTestManager(store Store, opts Options) *Manager {
	return NewManager(store, opts, zerolog.Nop())
}

func TestRecordAlertStartsCooldown(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(store, Options{PerZone: 30 * time.Minute, MaxDailyAlerts: 10})

	on, err := mgr.IsOnCooldown(context.Background(), "94500_short")
	if err != nil {
		t.Fatalf("IsOnCooldown 不应报错: %v", err)
	}
	if on {
		t.Fatal("尚未告警的区间不应处于冷却")
	}

	if err := mgr.RecordAlert(context.Background(), "94500_short"); err != nil {
		t.Fatalf("RecordAlert 不应报错: %v", err)
	}

	on, err = mgr.IsOnCooldown(context.Background(), "94500_short")
	if err != nil {
		t.Fatalf("IsOnCooldown 不应报错: %v", err)
	}
	if !on {
		t.Fatal("RecordAlert 之后应立即处于冷却")
	}
}

func TestCooldownExpires(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(store, Options{PerZone: 30 * time.Minute, MaxDailyAlerts: 10})

	past := time.Now().UTC().Add(-time.Hour)
	store.rows["94000_long"] = Cooldown{
		ZoneKey:       "94000_long",
		LastAlertTime: past,
		LastResetDate: UTCDay(past),
	}

	on, err := mgr.IsOnCooldown(context.Background(), "94000_long")
	if err != nil {
		t.Fatalf("IsOnCooldown 不应报错: %v", err)
	}
	if on {
		t.Fatal("冷却时间已过应恢复可用")
	}
}

func TestDailyCapBlocksAfterLimit(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(store, Options{PerZone: time.Minute, MaxDailyAlerts: 3})

	for i := 0; i < 3; i++ {
		can, err := mgr.CanSendAlert(context.Background())
		if err != nil {
			t.Fatalf("CanSendAlert 不应报错: %v", err)
		}
		if !can {
			t.Fatalf("第 %d 次发送前不应触顶", i+1)
		}
		if err := mgr.RecordAlert(context.Background(), fmt.Sprintf("zone_%d", i)); err != nil {
			t.Fatalf("RecordAlert 不应报错: %v", err)
		}
	}

	can, err := mgr.CanSendAlert(context.Background())
	if err != nil {
		t.Fatalf("CanSendAlert 不应报错: %v", err)
	}
	if can {
		t.Fatal("达到每日上限后应拒绝发送")
	}
}

func TestDailyCapResetsOnNewDay(t *testing.T) {
	store := newFakeStore()
	mgr := newTestManager(store, Options{PerZone: time.Minute, MaxDailyAlerts: 1})

	// 模拟昨日已触顶的计数器。
	store.count = 1
	store.reset = UTCDay(time.Now()).AddDate(0, 0, -1)

	can, err := mgr.CanSendAlert(context.Background())
	if err != nil {
		t.Fatalf("CanSendAlert 不应报错: %v", err)
	}
	if !can {
		t.Fatal("UTC 日期推进后计数器应重置")
	}
	if store.count != 0 {
		t.Fatalf("重置后计数应为 0, 实际 %d", store.count)
	}
}

func TestRecordAlertRetriesTransientBusy(t *testing.T) {
	store := newFakeStore()
	store.busyLeft = 2
	mgr := newTestManager(store, Options{
		PerZone:        time.Minute,
		MaxDailyAlerts: 10,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
	})

	if err := mgr.RecordAlert(context.Background(), "94500_short"); err != nil {
		t.Fatalf("瞬时锁冲突应在重试后成功: %v", err)
	}
	if store.upserts != 1 {
		t.Fatalf("期望恰好一次成功写入, 实际 %d", store.upserts)
	}
}

func TestRecordAlertTerminalAfterRetriesExhausted(t *testing.T) {
	store := newFakeStore()
	store.busyLeft = 100
	mgr := newTestManager(store, Options{
		PerZone:        time.Minute,
		MaxDailyAlerts: 10,
		MaxAttempts:    3,
		RetryDelay:     time.Millisecond,
	})

	err := mgr.RecordAlert(context.Background(), "94500_short")
	if err == nil {
		t.Fatal("重试耗尽后应返回终态错误")
	}
	if !errors.Is(err, ErrStoreBusy) {
		t.Fatalf("终态错误应保留 ErrStoreBusy: %v", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("错误信息应包含尝试次数: %v", err)
	}
	if store.upserts != 0 {
		t.Fatalf("不应有成功写入, 实际 %d", store.upserts)
	}
}

func TestNonBusyErrorNotRetried(t *testing.T) {
	store := &errStore{fakeStore: newFakeStore()}
	mgr := newTestManager(store, Options{PerZone: time.Minute, MaxDailyAlerts: 10, MaxAttempts: 3, RetryDelay: time.Millisecond})

	if err := mgr.RecordAlert(context.Background(), "x"); err == nil {
		t.Fatal("非锁冲突错误应直接返回")
	}
	if store.calls != 1 {
		t.Fatalf("非锁冲突错误不应重试, 实际调用 %d 次", store.calls)
	}
}

type errStore struct {
	*fakeStore
	calls int
}

func (e *errStore) UpsertCooldown(ctx context.Context, zoneKey string, at time.Time, today time.Time) error {
	e.calls++
	return errors.New("constraint violation")
}
