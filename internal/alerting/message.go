package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	decBillion = decimal.NewFromInt(1_000_000_000)
	decMillion = decimal.NewFromInt(1_000_000)
	decKilo    = decimal.NewFromInt(1_000)
)

// renderText builds the plain-text alert body shared by all channels.
func renderText(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s Liquidation Zone Alert]\n", strings.ToUpper(string(alert.Severity))))
	builder.WriteString(fmt.Sprintf("Symbol: %s\n", alert.Symbol))
	builder.WriteString(fmt.Sprintf("Price: %s\n", alert.CurrentPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Zone: %s (%s side)\n", alert.ZonePrice.StringFixed(2), alert.ZoneSide))
	builder.WriteString(fmt.Sprintf("Density: %s USD\n", formatUSD(alert.ZoneDensity)))
	builder.WriteString(fmt.Sprintf("Distance: %s%%\n", alert.DistancePct.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.Timestamp.UTC().Format(time.RFC3339)))
	if alert.Message != "" {
		builder.WriteString(alert.Message)
	}
	return builder.String()
}

// renderMarkdown 输出 Telegram Markdown 格式的告警文本。
func renderMarkdown(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("*%s Liquidation Zone Alert*\n", strings.ToUpper(string(alert.Severity))))
	builder.WriteString(fmt.Sprintf("Symbol: `%s`\n", alert.Symbol))
	builder.WriteString(fmt.Sprintf("Price: `%s`\n", alert.CurrentPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Zone: `%s` (%s side)\n", alert.ZonePrice.StringFixed(2), alert.ZoneSide))
	builder.WriteString(fmt.Sprintf("Density: `%s USD`\n", formatUSD(alert.ZoneDensity)))
	builder.WriteString(fmt.Sprintf("Distance: `%s%%`\n", alert.DistancePct.StringFixed(2)))
	if alert.Message != "" {
		builder.WriteString(alert.Message)
	}
	return builder.String()
}

// Summarize 生成单行描述，说明区间位于现价的哪一侧。direction 描述
// 区间相对现价的方位，不是现价相对区间的方位。
func Summarize(alert Alert, direction string) string {
	return fmt.Sprintf("%s: %s USD %s zone at %s is %s%% %s current price",
		alert.Symbol, formatUSD(alert.ZoneDensity), alert.ZoneSide,
		alert.ZonePrice.StringFixed(2), alert.DistancePct.StringFixed(2), direction)
}

// formatUSD abbreviates large USD amounts (1.50B, 20.00M, 850.00K).
func formatUSD(v decimal.Decimal) string {
	abs := v.Abs()
	switch {
	case abs.GreaterThanOrEqual(decBillion):
		return v.Div(decBillion).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(decMillion):
		return v.Div(decMillion).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(decKilo):
		return v.Div(decKilo).StringFixed(2) + "K"
	}
	return v.StringFixed(2)
}
