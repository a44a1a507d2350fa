package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TelegramChannel 通过 Telegram Bot API 推送消息。
type TelegramChannel struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramChannel 构造 Telegram 告警通道。
func NewTelegramChannel(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "channel_telegram").Logger(),
	}
}

// Name identifies the channel in filters and dispatch results.
func (c *TelegramChannel) Name() string { return "telegram" }

// Send 调用 sendMessage API 推送 Markdown 文本。
func (c *TelegramChannel) Send(ctx context.Context, alert Alert) ChannelResult {
	payload := map[string]string{
		"chat_id":    c.chatID,
		"text":       renderMarkdown(alert),
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("marshal telegram payload: %v", err))
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("create telegram request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("send telegram request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resultFail(c.Name(), fmt.Sprintf("telegram 响应码异常: %d", resp.StatusCode))
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return resultFail(c.Name(), fmt.Sprintf("telegram 返回 ok=false: %s", result.Description))
	}

	c.logger.Info().Str("severity", string(alert.Severity)).
		Str("symbol", alert.Symbol).
		Msg("告警已发送 (Telegram)")
	return resultOK(c.Name(), map[string]any{"status": resp.StatusCode})
}

// TestConnection 调用 getMe 校验 bot token 是否可用。
func (c *TelegramChannel) TestConnection(ctx context.Context) ChannelResult {
	url := fmt.Sprintf("%s/bot%s/getMe", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("create telegram request: %v", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return resultFail(c.Name(), fmt.Sprintf("telegram getMe: %v", err))
	}
	defer resp.Body.Close()

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || !result.OK {
		return resultFail(c.Name(), "telegram getMe 返回 ok=false")
	}
	return resultOK(c.Name(), map[string]any{"status": resp.StatusCode})
}

var _ Channel = (*TelegramChannel)(nil)
