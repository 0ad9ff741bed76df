package model

import (
	"time"

	"github.com/betbot/cyclebet/internal/domain"
)

// TailSweepConfig 尾段扫单筛选阈值
type TailSweepConfig struct {
	MinWinProbability float64 // 候选方向的最低胜率
	MinEdge           float64 // 胜率相对盘口隐含概率的最低优势
	MaxFlipRisk       float64 // 可接受的最高翻盘风险
	RiskAversion      float64 // 评分中翻盘风险的惩罚系数
}

// DefaultTailSweepConfig 默认阈值
func DefaultTailSweepConfig() TailSweepConfig {
	return TailSweepConfig{
		MinWinProbability: 0.75,
		MinEdge:           0.05,
		MaxFlipRisk:       0.20,
		RiskAversion:      0.5,
	}
}

// SideQuote 某一方向的盘口最优卖价。价格在 (0,1) 区间，直接视为
// 市场对该方向获胜的隐含概率。
type SideQuote struct {
	Side  domain.Outcome
	Price float64
	Size  float64
}

// EvaluateTailSweep 尾段扫单决策：对每个有报价的方向计算胜率、优势、
// 翻盘风险与评分，三项阈值同时通过才是候选；多个候选取评分最高者。
// 没有报价或没有候选时返回不下注。纯函数，不产生日志。
func EvaluateTailSweep(ticks []domain.PriceTick, priceToBeat float64, remaining time.Duration, quotes []SideQuote, cfg TailSweepConfig) domain.Decision {
	noBet := domain.Decision{Side: domain.OutcomeNone}
	if len(quotes) == 0 {
		return noBet
	}

	forecast := TerminalForecast(ticks, priceToBeat, remaining)

	best := noBet
	found := false
	for _, q := range quotes {
		if q.Side == domain.OutcomeNone || q.Price <= 0 || q.Price >= 1 {
			continue
		}
		winProb := forecast.ProbabilityFor(q.Side)
		edge := winProb - q.Price
		flipRisk := 1 - winProb
		score := edge - cfg.RiskAversion*flipRisk

		if winProb < cfg.MinWinProbability || edge < cfg.MinEdge || flipRisk > cfg.MaxFlipRisk {
			continue
		}
		if !found || score > best.Score {
			best = domain.Decision{
				Side:               q.Side,
				WinProbability:     winProb,
				ImpliedProbability: q.Price,
				Edge:               edge,
				FlipRisk:           flipRisk,
				Score:              score,
				ShouldBet:          true,
			}
			found = true
		}
	}
	if !found {
		return noBet
	}
	return best
}
