package model

import (
	"time"

	"github.com/betbot/cyclebet/internal/domain"
)

// DefaultHoldProbability 持仓方向胜率高于此阈值时视为噪音回调，继续持有
const DefaultHoldProbability = 0.8

// EvaluateExit 持仓再评估。当前瞬时结果仍站在持仓方向时直接持有；
// 已被反超时重新估计持仓方向的胜率，高于 holdProbability 视为可能
// 回归继续持有，否则建议卖出。数据不足一律持有，避免反复进出。
// 纯函数，不产生日志。
func EvaluateExit(held domain.Outcome, ticks []domain.PriceTick, priceToBeat float64, remaining time.Duration, holdProbability float64) domain.ExitAction {
	if held == domain.OutcomeNone || priceToBeat <= 0 || remaining <= 0 {
		return domain.ExitActionHold
	}
	sorted := domain.SortTicksByTime(ticks)
	if len(sorted) < 2 {
		return domain.ExitActionHold
	}
	if holdProbability <= 0 {
		holdProbability = DefaultHoldProbability
	}

	lastPrice := sorted[len(sorted)-1].Value
	instant := domain.OutcomeDown
	if lastPrice >= priceToBeat {
		instant = domain.OutcomeUp
	}
	if instant == held {
		return domain.ExitActionHold
	}

	forecast := TerminalForecast(sorted, priceToBeat, remaining)
	if forecast.ProbabilityFor(held) >= holdProbability {
		return domain.ExitActionHold
	}
	return domain.ExitActionSell
}
