package model

import (
	"math"
	"time"

	"github.com/betbot/cyclebet/internal/domain"
)

// Forecast 终端价格落点的概率预估
type Forecast struct {
	UpProbability   float64 // P(终端价 >= 参考价)
	DownProbability float64 // 1 - UpProbability
	Drift           float64 // 对数收益均值 μ
	Volatility      float64 // 对数收益样本标准差 σ
	Samples         int     // 参与估计的收益样本数
}

// neutral 数据不足时的中性预估
func neutral() Forecast {
	return Forecast{UpProbability: 0.5, DownProbability: 0.5}
}

// TerminalForecast 用 GBM 校准估计周期结束时价格高于参考价的概率。
// 流程：对 tick 序列取对数收益，估计漂移 μ 与波动 σ，按剩余时间折算
// 未来步数，将 ln(终端价) 建模为正态分布后对 ln(K) 求尾概率。
// 纯函数，不产生日志。退化输入（样本不足、零方差、非法参数）一律
// 收敛为中性或确定性概率而非报错。
func TerminalForecast(ticks []domain.PriceTick, priceToBeat float64, remaining time.Duration) Forecast {
	if priceToBeat <= 0 || remaining <= 0 {
		return neutral()
	}

	sorted := domain.SortTicksByTime(ticks)
	prices := make([]float64, 0, len(sorted))
	var firstTs, lastTs int64
	for _, tk := range sorted {
		if tk.Value <= 0 || math.IsNaN(tk.Value) || math.IsInf(tk.Value, 0) {
			continue
		}
		if len(prices) == 0 {
			firstTs = tk.Timestamp
		}
		lastTs = tk.Timestamp
		prices = append(prices, tk.Value)
	}
	if len(prices) < 2 {
		return neutral()
	}

	// 对数收益
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}

	mu := mean(returns)
	sigma := sampleStdDev(returns, mu)

	// 按历史跨度折算未来步数
	historyMs := float64(lastTs - firstTs)
	if historyMs <= 0 {
		return neutral()
	}
	stepsAhead := float64(len(returns)) * float64(remaining.Milliseconds()) / historyMs
	if stepsAhead <= 0 || math.IsNaN(stepsAhead) || math.IsInf(stepsAhead, 0) {
		return neutral()
	}

	lastPrice := prices[len(prices)-1]
	meanLog := math.Log(lastPrice) + mu*stepsAhead
	stdLog := sigma * math.Sqrt(stepsAhead)

	f := Forecast{Drift: mu, Volatility: sigma, Samples: len(returns)}

	// 零方差：分布退化为点，结果由当前价与参考价的大小关系决定
	if stdLog <= 0 || math.IsNaN(stdLog) || math.IsInf(stdLog, 0) {
		if lastPrice >= priceToBeat {
			f.UpProbability, f.DownProbability = 1, 0
		} else {
			f.UpProbability, f.DownProbability = 0, 1
		}
		return f
	}

	z := (math.Log(priceToBeat) - meanLog) / stdLog
	up := clamp01(1 - NormCdf(z))
	f.UpProbability = up
	f.DownProbability = clamp01(1 - up)
	return f
}

// ProbabilityFor 返回指定方向的胜率
func (f Forecast) ProbabilityFor(side domain.Outcome) float64 {
	switch side {
	case domain.OutcomeUp:
		return f.UpProbability
	case domain.OutcomeDown:
		return f.DownProbability
	default:
		return 0
	}
}

// NormCdf 标准正态分布函数 Φ(z)
func NormCdf(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev 样本标准差（分母 n-1，n<2 时为 0）
func sampleStdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
