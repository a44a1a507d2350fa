package proximity

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testThresholds() Thresholds {
	return Thresholds{
		Critical: Tier{DistancePct: dec("1"), MinDensity: dec("10000000")},
		Warning:  Tier{DistancePct: dec("3"), MinDensity: dec("5000000")},
		Info:     Tier{DistancePct: dec("5"), MinDensity: dec("1000000")},
	}
}

func TestComputeDistance(t *testing.T) {
	cases := []struct {
		zonePrice string
		current   string
		distance  string
		direction string
	}{
		{"94500", "94000", "0.53", "above"},
		{"93000", "94000", "1.06", "below"},
		{"94000", "94000", "0", "below"},
		{"100000", "94000", "6.38", "above"},
	}

	for _, tc := range cases {
		prox, err := Compute(Zone{Price: dec(tc.zonePrice)}, dec(tc.current))
		if err != nil {
			t.Fatalf("Compute 不应报错: %v", err)
		}
		if prox.DistancePct.Cmp(dec(tc.distance)) != 0 {
			t.Fatalf("区间 %s/现价 %s: 期望距离 %s, 实际 %s", tc.zonePrice, tc.current, tc.distance, prox.DistancePct.String())
		}
		if prox.Direction != tc.direction {
			t.Fatalf("区间 %s/现价 %s: 期望方向 %s, 实际 %s", tc.zonePrice, tc.current, tc.direction, prox.Direction)
		}
		if prox.DistancePct.IsNegative() {
			t.Fatal("距离不能为负")
		}
	}
}

func TestComputeZeroPrice(t *testing.T) {
	if _, err := Compute(Zone{Price: dec("94500")}, decimal.Zero); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("现价为 0 时应返回 ErrInvalidPrice, 实际 %v", err)
	}
}

func TestZoneKeyBucketing(t *testing.T) {
	shortZone := Zone{Price: dec("94523.45"), LongDensity: dec("1"), ShortDensity: dec("2")}
	prox, err := Compute(shortZone, dec("94000"))
	if err != nil {
		t.Fatalf("Compute 不应报错: %v", err)
	}
	if key := prox.ZoneKey(); key != "94500_short" {
		t.Fatalf("期望 94500_short, 实际 %s", key)
	}

	longZone := Zone{Price: dec("94050"), LongDensity: dec("2"), ShortDensity: dec("1")}
	prox, err = Compute(longZone, dec("94000"))
	if err != nil {
		t.Fatalf("Compute 不应报错: %v", err)
	}
	if key := prox.ZoneKey(); key != "94000_long" {
		t.Fatalf("期望 94000_long, 实际 %s", key)
	}
}

func TestClassifyCritical(t *testing.T) {
	// 距离 0.53%，总密度 20M：critical 的距离与密度条件同时满足。
	zone := Zone{Price: dec("94500"), LongDensity: dec("5000000"), ShortDensity: dec("15000000")}
	prox, err := Compute(zone, dec("94000"))
	if err != nil {
		t.Fatalf("Compute 不应报错: %v", err)
	}
	if prox.DistancePct.Cmp(dec("0.53")) != 0 {
		t.Fatalf("期望距离 0.53, 实际 %s", prox.DistancePct.String())
	}

	severity, ok := Classify(prox, testThresholds())
	if !ok || severity != SeverityCritical {
		t.Fatalf("期望 critical, 实际 %s (ok=%v)", severity, ok)
	}
}

func TestClassifyFallsThroughToWarning(t *testing.T) {
	// 同样距离但总密度 5M，低于 critical 的 10M，应落入 warning。
	zone := Zone{Price: dec("94500"), LongDensity: dec("2000000"), ShortDensity: dec("3000000")}
	prox, err := Compute(zone, dec("94000"))
	if err != nil {
		t.Fatalf("Compute 不应报错: %v", err)
	}

	severity, ok := Classify(prox, testThresholds())
	if !ok || severity != SeverityWarning {
		t.Fatalf("期望 warning, 实际 %s (ok=%v)", severity, ok)
	}
}

func TestClassifyNone(t *testing.T) {
	zone := Zone{Price: dec("104000"), LongDensity: dec("50000000"), ShortDensity: dec("0")}
	prox, err := Compute(zone, dec("94000"))
	if err != nil {
		t.Fatalf("Compute 不应报错: %v", err)
	}
	if _, ok := Classify(prox, testThresholds()); ok {
		t.Fatal("距离超出 info 阈值时不应触发")
	}
}

func TestClassifySeverityMonotonic(t *testing.T) {
	// 满足 critical 的距离与密度时，即使 warning/info 同样满足也不得降级。
	zone := Zone{Price: dec("94100"), LongDensity: dec("30000000"), ShortDensity: dec("10000000")}
	prox, err := Compute(zone, dec("94000"))
	if err != nil {
		t.Fatalf("Compute 不应报错: %v", err)
	}

	thresholds := testThresholds()
	if !thresholds.Warning.Matches(prox) || !thresholds.Info.Matches(prox) {
		t.Fatal("前置条件: warning 与 info 也应匹配")
	}

	severity, ok := Classify(prox, thresholds)
	if !ok || severity != SeverityCritical {
		t.Fatalf("期望 critical, 实际 %s", severity)
	}
}

func TestThresholdsValidate(t *testing.T) {
	valid := testThresholds()
	if err := valid.Validate(); err != nil {
		t.Fatalf("合法阈值不应报错: %v", err)
	}

	broken := valid
	broken.Warning.DistancePct = dec("0.5")
	if err := broken.Validate(); err == nil {
		t.Fatal("距离未严格递增时应报错")
	}

	zeroDist := valid
	zeroDist.Critical.DistancePct = decimal.Zero
	if err := zeroDist.Validate(); err == nil {
		t.Fatal("distance_pct 为 0 时应报错")
	}

	negDensity := valid
	negDensity.Info.MinDensity = dec("-1")
	if err := negDensity.Validate(); err == nil {
		t.Fatal("min_density 为负时应报错")
	}
}

func TestDominantSide(t *testing.T) {
	if side := (Zone{LongDensity: dec("2"), ShortDensity: dec("1")}).DominantSide(); side != SideLong {
		t.Fatalf("期望 long, 实际 %s", side)
	}
	if side := (Zone{LongDensity: dec("1"), ShortDensity: dec("1")}).DominantSide(); side != SideShort {
		t.Fatalf("持平时期望 short, 实际 %s", side)
	}
}
