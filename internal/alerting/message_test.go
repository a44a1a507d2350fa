package alerting

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"liquidation-zone-alerts/internal/proximity"
)

func TestSummarizeDescribesZoneSideOfPrice(t *testing.T) {
	// 区间 94500 在现价 94000 上方：消息必须说区间在现价 above，
	// 而不是现价在区间 above。
	alert := testAlert(proximity.SeverityCritical)

	msg := Summarize(alert, proximity.DirectionAbove)
	want := "BTCUSDT: 20.00M USD short zone at 94500.00 is 0.53% above current price"
	if msg != want {
		t.Fatalf("期望 %q, 实际 %q", want, msg)
	}

	below := Summarize(alert, proximity.DirectionBelow)
	if !strings.Contains(below, "below current price") {
		t.Fatalf("below 方向描述不正确: %s", below)
	}
}

func TestFormatUSDAbbreviation(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{1_500_000_000, "1.50B"},
		{20_000_000, "20.00M"},
		{850_000, "850.00K"},
		{999, "999.00"},
	}
	for _, tc := range cases {
		if got := formatUSD(decimal.NewFromInt(tc.in)); got != tc.want {
			t.Fatalf("%d: 期望 %s, 实际 %s", tc.in, tc.want, got)
		}
	}
}
