package alerting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"liquidation-zone-alerts/internal/proximity"
)

type stubChannel struct {
	name string
	send func(ctx context.Context, alert Alert) ChannelResult
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(ctx context.Context, alert Alert) ChannelResult {
	return s.send(ctx, alert)
}

func (s *stubChannel) TestConnection(ctx context.Context) ChannelResult {
	return resultOK(s.name, nil)
}

func okChannel(name string) *stubChannel {
	return &stubChannel{name: name, send: func(ctx context.Context, alert Alert) ChannelResult {
		return resultOK(name, nil)
	}}
}

func failChannel(name, msg string) *stubChannel {
	return &stubChannel{name: name, send: func(ctx context.Context, alert Alert) ChannelResult {
		return resultFail(name, msg)
	}}
}

func testAlert(severity proximity.Severity) Alert {
	return Alert{
		Timestamp:    time.Now().UTC(),
		Symbol:       "BTCUSDT",
		CurrentPrice: decimal.NewFromInt(94000),
		ZonePrice:    decimal.NewFromInt(94500),
		ZoneDensity:  decimal.NewFromInt(20_000_000),
		ZoneSide:     "short",
		DistancePct:  decimal.NewFromFloat(0.53),
		Severity:     severity,
	}
}

func newTestDispatcher(channels []Channel, filters map[string][]proximity.Severity, timeout time.Duration) *Dispatcher {
	return NewDispatcher(channels, filters, timeout, zerolog.Nop())
}

func TestDispatchAllSuccess(t *testing.T) {
	d := newTestDispatcher([]Channel{okChannel("telegram"), okChannel("discord")}, nil, time.Second)

	result := d.Dispatch(context.Background(), testAlert(proximity.SeverityCritical))
	if result.Status != StatusSuccess {
		t.Fatalf("期望 success, 实际 %s", result.Status)
	}
	if len(result.ChannelsSent) != 2 || len(result.ChannelsFailed) != 0 {
		t.Fatalf("发送集合不正确: %#v", result)
	}
}

func TestDispatchPartialWhenOneChannelPanics(t *testing.T) {
	panicking := &stubChannel{name: "failing", send: func(ctx context.Context, alert Alert) ChannelResult {
		panic("boom")
	}}
	d := newTestDispatcher([]Channel{panicking, okChannel("other")}, nil, time.Second)

	result := d.Dispatch(context.Background(), testAlert(proximity.SeverityWarning))
	if result.Status != StatusPartial {
		t.Fatalf("期望 partial, 实际 %s", result.Status)
	}
	if len(result.ChannelsSent) != 1 || result.ChannelsSent[0] != "other" {
		t.Fatalf("期望仅 other 成功: %#v", result.ChannelsSent)
	}
	if len(result.ChannelsFailed) != 1 || result.ChannelsFailed[0] != "failing" {
		t.Fatalf("期望仅 failing 失败: %#v", result.ChannelsFailed)
	}
	if !strings.Contains(result.ErrorMessage, "failing") {
		t.Fatalf("错误信息应标明失败通道: %s", result.ErrorMessage)
	}
}

func TestDispatchFailedAggregatesAllChannels(t *testing.T) {
	d := newTestDispatcher([]Channel{failChannel("telegram", "401"), failChannel("discord", "404")}, nil, time.Second)

	result := d.Dispatch(context.Background(), testAlert(proximity.SeverityInfo))
	if result.Status != StatusFailed {
		t.Fatalf("期望 failed, 实际 %s", result.Status)
	}
	if len(result.ChannelsFailed) != 2 {
		t.Fatalf("两个通道都应失败: %#v", result.ChannelsFailed)
	}
	for _, name := range []string{"telegram", "discord"} {
		if !strings.Contains(result.ErrorMessage, name) {
			t.Fatalf("聚合错误应包含 %s: %s", name, result.ErrorMessage)
		}
	}
}

func TestDispatchNoEligibleChannelsIsNoop(t *testing.T) {
	filters := map[string][]proximity.Severity{
		"telegram": {proximity.SeverityCritical},
	}
	d := newTestDispatcher([]Channel{okChannel("telegram")}, filters, time.Second)

	result := d.Dispatch(context.Background(), testAlert(proximity.SeverityInfo))
	if result.Status != StatusSuccess {
		t.Fatalf("空集派发应视为 success, 实际 %s", result.Status)
	}
	if len(result.ChannelsSent) != 0 || len(result.ChannelsFailed) != 0 {
		t.Fatalf("空集派发不应有任何通道记录: %#v", result)
	}
}

func TestDispatchUnfilteredChannelReceivesEverySeverity(t *testing.T) {
	filters := map[string][]proximity.Severity{
		"telegram": {proximity.SeverityCritical},
	}
	d := newTestDispatcher([]Channel{okChannel("telegram"), okChannel("email")}, filters, time.Second)

	result := d.Dispatch(context.Background(), testAlert(proximity.SeverityInfo))
	if len(result.ChannelsSent) != 1 || result.ChannelsSent[0] != "email" {
		t.Fatalf("无过滤条目的通道应接收所有级别: %#v", result.ChannelsSent)
	}
}

func TestDispatchTimeoutIsolatesSlowChannel(t *testing.T) {
	slow := &stubChannel{name: "slow", send: func(ctx context.Context, alert Alert) ChannelResult {
		time.Sleep(200 * time.Millisecond)
		return resultOK("slow", nil)
	}}
	d := newTestDispatcher([]Channel{slow, okChannel("fast")}, nil, 20*time.Millisecond)

	start := time.Now()
	result := d.Dispatch(context.Background(), testAlert(proximity.SeverityCritical))
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("超时通道不应拖慢整体派发: %s", elapsed)
	}

	if result.Status != StatusPartial {
		t.Fatalf("期望 partial, 实际 %s", result.Status)
	}
	if len(result.ChannelsFailed) != 1 || result.ChannelsFailed[0] != "slow" {
		t.Fatalf("仅 slow 应失败: %#v", result.ChannelsFailed)
	}
	if !strings.Contains(result.ErrorMessage, "timed out") {
		t.Fatalf("超时应在错误信息中体现: %s", result.ErrorMessage)
	}
}
