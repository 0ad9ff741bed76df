package model

import (
	"math"
	"testing"
	"testing/quick"
	"time"

	"github.com/betbot/cyclebet/internal/domain"
)

func ticksFromPrices(prices ...float64) []domain.PriceTick {
	ticks := make([]domain.PriceTick, len(prices))
	for i, p := range prices {
		ticks[i] = domain.PriceTick{Value: p, Timestamp: int64(i+1) * 1000}
	}
	return ticks
}

// 样本不足时必须返回精确的 0.5/0.5
func TestForecastInsufficientTicks(t *testing.T) {
	cases := [][]domain.PriceTick{
		nil,
		{},
		ticksFromPrices(100),
		{{Value: -5, Timestamp: 1000}, {Value: 0, Timestamp: 2000}}, // 非正价格全部被过滤
	}
	for i, ticks := range cases {
		f := TerminalForecast(ticks, 100, time.Minute)
		if f.UpProbability != 0.5 || f.DownProbability != 0.5 {
			t.Fatalf("case %d: 期望中性 0.5/0.5, 实际 %v/%v", i, f.UpProbability, f.DownProbability)
		}
	}
}

// 非法参考价或剩余时间同样收敛为中性
func TestForecastInvalidInputs(t *testing.T) {
	ticks := ticksFromPrices(100, 101, 102)
	if f := TerminalForecast(ticks, 0, time.Minute); f.UpProbability != 0.5 {
		t.Fatalf("参考价为 0 应中性, 实际 %v", f.UpProbability)
	}
	if f := TerminalForecast(ticks, 100, 0); f.UpProbability != 0.5 {
		t.Fatalf("剩余时间为 0 应中性, 实际 %v", f.UpProbability)
	}
}

// 零方差序列：结果由当前价与参考价的大小关系决定
func TestForecastZeroVariance(t *testing.T) {
	flat := ticksFromPrices(100, 100, 100, 100)

	f := TerminalForecast(flat, 99, time.Minute)
	if f.UpProbability != 1 || f.DownProbability != 0 {
		t.Fatalf("当前价高于参考价应确定上行, 实际 %v/%v", f.UpProbability, f.DownProbability)
	}

	f = TerminalForecast(flat, 101, time.Minute)
	if f.UpProbability != 0 || f.DownProbability != 1 {
		t.Fatalf("当前价低于参考价应确定下行, 实际 %v/%v", f.UpProbability, f.DownProbability)
	}
}

// 属性：任意合法 tick 序列下 P(up)+P(down)=1 且都在 [0,1]
func TestForecastProbabilityProperty(t *testing.T) {
	prop := func(seeds []uint16, refSeed uint16) bool {
		if len(seeds) < 2 {
			return true
		}
		if len(seeds) > 64 {
			seeds = seeds[:64]
		}
		ticks := make([]domain.PriceTick, len(seeds))
		for i, s := range seeds {
			ticks[i] = domain.PriceTick{
				Value:     50 + float64(s%10000)/10, // (50, 1050)
				Timestamp: int64(i+1) * 500,
			}
		}
		priceToBeat := 50 + float64(refSeed%10000)/10
		f := TerminalForecast(ticks, priceToBeat, 4*time.Minute)

		if f.UpProbability < 0 || f.UpProbability > 1 {
			return false
		}
		if f.DownProbability < 0 || f.DownProbability > 1 {
			return false
		}
		return math.Abs(f.UpProbability+f.DownProbability-1) < 1e-9
	}
	if err := quick.Check(prop, &quick.Config{MaxCount: 500}); err != nil {
		t.Fatal(err)
	}
}

// 上涨趋势下 P(up) 应高于下跌趋势下的 P(up)
func TestForecastDriftDirection(t *testing.T) {
	up := TerminalForecast(ticksFromPrices(100, 102, 104, 106, 108), 100, 4*time.Minute)
	down := TerminalForecast(ticksFromPrices(108, 106, 104, 102, 100), 100, 4*time.Minute)
	if up.UpProbability <= down.UpProbability {
		t.Fatalf("上涨趋势 P(up)=%v 应大于下跌趋势 P(up)=%v", up.UpProbability, down.UpProbability)
	}
}

// 统计对乱序到达不敏感：排序后结果一致
func TestForecastOrderInsensitive(t *testing.T) {
	ordered := ticksFromPrices(100, 101, 103, 102, 105)
	shuffled := []domain.PriceTick{ordered[3], ordered[0], ordered[4], ordered[1], ordered[2]}

	a := TerminalForecast(ordered, 101, time.Minute)
	b := TerminalForecast(shuffled, 101, time.Minute)
	if a.UpProbability != b.UpProbability {
		t.Fatalf("乱序输入结果不一致: %v vs %v", a.UpProbability, b.UpProbability)
	}
}

func TestNormCdf(t *testing.T) {
	cases := []struct {
		z    float64
		want float64
	}{
		{0, 0.5},
		{1.96, 0.9750021},
		{-1.96, 0.0249979},
		{3, 0.9986501},
	}
	for _, tc := range cases {
		if got := NormCdf(tc.z); math.Abs(got-tc.want) > 1e-6 {
			t.Fatalf("Φ(%v): 期望 %v, 实际 %v", tc.z, tc.want, got)
		}
	}
}
