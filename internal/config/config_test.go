package config

import (
	"strings"
	"testing"
	"time"

	"liquidation-zone-alerts/internal/proximity"
)

func validConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{Interval: time.Minute},
		Market:    MarketConfig{Symbol: "BTCUSDT"},
		Alerting: AlertingConfig{
			Thresholds: ThresholdsConfig{
				Critical: TierConfig{DistancePct: 1.0, MinDensity: 10_000_000},
				Warning:  TierConfig{DistancePct: 3.0, MinDensity: 5_000_000},
				Info:     TierConfig{DistancePct: 5.0, MinDensity: 1_000_000},
			},
			Cooldown: CooldownConfig{PerZoneMinutes: 30, MaxDailyAlerts: 20},
			Telegram: TelegramConfig{
				Enabled:        true,
				BotToken:       "token",
				ChatID:         "chat",
				SeverityFilter: []string{"critical", "warning"},
			},
		},
		Retention: RetentionConfig{AlertHistoryDays: 30},
		Export:    ExportConfig{MaxDataPoints: 1000},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}
}

func TestValidateRejectsNonMonotonicThresholds(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Thresholds.Warning.DistancePct = 0.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "thresholds") {
		t.Fatalf("距离未严格递增时应报错: %v", err)
	}
}

func TestValidateRequiresEnabledChannel(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Telegram.Enabled = false
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "channel") {
		t.Fatalf("无启用通道时应报错: %v", err)
	}
}

func TestValidateRequiresTelegramCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Telegram.BotToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram 启用但缺少 bot_token 应报错")
	}

	cfg = validConfig()
	cfg.Alerting.Telegram.ChatID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("telegram 启用但缺少 chat_id 应报错")
	}
}

func TestValidateRequiresDiscordWebhook(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Discord.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("discord 启用但缺少 webhook_url 应报错")
	}
}

func TestValidateRejectsUnknownSeverity(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Telegram.SeverityFilter = []string{"fatal"}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "severity") {
		t.Fatalf("未知级别应报错: %v", err)
	}
}

func TestValidateRejectsCooldownBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Cooldown.PerZoneMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("per_zone_minutes 为 0 应报错")
	}

	cfg = validConfig()
	cfg.Alerting.Cooldown.MaxDailyAlerts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("max_daily_alerts 为 0 应报错")
	}
}

func TestSeverityFilters(t *testing.T) {
	cfg := validConfig()
	cfg.Alerting.Discord.SeverityFilter = nil

	filters, err := cfg.SeverityFilters()
	if err != nil {
		t.Fatalf("SeverityFilters 不应报错: %v", err)
	}

	got, ok := filters["telegram"]
	if !ok || len(got) != 2 {
		t.Fatalf("telegram 过滤解析不正确: %#v", got)
	}
	if got[0] != proximity.SeverityCritical || got[1] != proximity.SeverityWarning {
		t.Fatalf("telegram 过滤顺序不正确: %#v", got)
	}

	// 空过滤的通道不应出现在映射中，表示接收全部级别。
	if _, ok := filters["discord"]; ok {
		t.Fatal("空过滤的通道不应出现在映射中")
	}
}

func TestThresholdsConversion(t *testing.T) {
	th := validConfig().Thresholds()
	if err := th.Validate(); err != nil {
		t.Fatalf("转换后的阈值应合法: %v", err)
	}
	if th.Critical.DistancePct.String() != "1" {
		t.Fatalf("critical 距离转换不正确: %s", th.Critical.DistancePct)
	}
}
