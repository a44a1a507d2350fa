package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"liquidation-zone-alerts/internal/proximity"
)

// Discord embed colours per severity.
const (
	colorCritical = 0xE74C3C
	colorWarning  = 0xE67E22
	colorInfo     = 0x3498DB
)

// DiscordChannel pushes alerts to a Discord webhook as an embed.
type DiscordChannel struct {
	webhookURL string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordChannel constructs a Discord webhook channel.
func NewDiscordChannel(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "channel_discord").Logger(),
	}
}

// Name identifies the channel in filters and dispatch results.
func (c *DiscordChannel) Name() string { return "discord" }

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

// Send posts the alert embed; any 2xx response counts as delivered.
func (c *DiscordChannel) Send(ctx context.Context, alert Alert) ChannelResult {
	embed := discordEmbed{
		Title:       fmt.Sprintf("%s Liquidation Zone Alert — %s", alert.Severity, alert.Symbol),
		Description: alert.Message,
		Color:       severityColor(alert.Severity),
		Timestamp:   alert.Timestamp.UTC().Format(time.RFC3339),
		Fields: []discordEmbedField{
			{Name: "Price", Value: alert.CurrentPrice.StringFixed(2), Inline: true},
			{Name: "Zone", Value: alert.ZonePrice.StringFixed(2), Inline: true},
			{Name: "Side", Value: alert.ZoneSide, Inline: true},
			{Name: "Density", Value: formatUSD(alert.ZoneDensity) + " USD", Inline: true},
			{Name: "Distance", Value: alert.DistancePct.StringFixed(2) + "%", Inline: true},
		},
	}

	return c.post(ctx, discordPayload{Embeds: []discordEmbed{embed}})
}

// TestConnection 以 GET 请求校验 webhook 是否存在，不向频道发消息。
func (c *DiscordChannel) TestConnection(ctx context.Context) ChannelResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.webhookURL, nil)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("create discord request: %v", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("discord webhook lookup: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resultFail(c.Name(), fmt.Sprintf("discord webhook status %d", resp.StatusCode))
	}
	return resultOK(c.Name(), map[string]any{"status": resp.StatusCode})
}

func (c *DiscordChannel) post(ctx context.Context, payload discordPayload) ChannelResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("marshal discord payload: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("create discord request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("send discord request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resultFail(c.Name(), fmt.Sprintf("discord webhook status %d", resp.StatusCode))
	}

	return resultOK(c.Name(), map[string]any{"status": resp.StatusCode})
}

func severityColor(s proximity.Severity) int {
	switch s {
	case proximity.SeverityCritical:
		return colorCritical
	case proximity.SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}

var _ Channel = (*DiscordChannel)(nil)
