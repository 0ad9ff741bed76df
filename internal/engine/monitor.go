package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/internal/model"
)

// ExitMonitor 持仓期间的离场监控。每个 tick 重新评估持仓，模型第一次
// 给出卖出建议即返回；截止时间先到则返回持有（仓位留待结算）。
type ExitMonitor struct {
	prices          PriceStream
	holdProbability float64
	log             *logrus.Entry
}

func NewExitMonitor(prices PriceStream, holdProbability float64) *ExitMonitor {
	if holdProbability <= 0 {
		holdProbability = model.DefaultHoldProbability
	}
	return &ExitMonitor{
		prices:          prices,
		holdProbability: holdProbability,
		log:             logrus.WithField("component", "monitor"),
	}
}

// WaitForExit 阻塞直到建议卖出、周期截止或 ctx 取消
func (m *ExitMonitor) WaitForExit(ctx context.Context, symbol string, held domain.Outcome, cycle domain.Cycle) domain.ExitAction {
	sellCh := make(chan struct{}, 1)
	var once sync.Once

	m.prices.OnPriceChange(symbol, func(_ domain.PriceTick, history []domain.PriceTick) {
		remaining := cycle.Remaining(time.Now())
		action := model.EvaluateExit(held, history, cycle.PriceToBeat, remaining, m.holdProbability)
		if action == domain.ExitActionSell {
			once.Do(func() {
				m.log.Warnf("📉 持仓 %s 翻转风险过高，建议卖出", held)
				sellCh <- struct{}{}
			})
		}
	})

	timer := time.NewTimer(cycle.Remaining(time.Now()))
	defer timer.Stop()

	select {
	case <-sellCh:
		return domain.ExitActionSell
	case <-timer.C:
		m.log.Infof("⏳ 持仓 %s 保持到周期截止，交由结算处理", held)
		return domain.ExitActionHold
	case <-ctx.Done():
		return domain.ExitActionHold
	}
}
