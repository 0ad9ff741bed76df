package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/internal/model"
)

// EntryResult 入场机会搜索结果。TimedOut 区分"超时前数据不足"
// 与"模型明确判定不下注"：两者都不入场，但只有前者说明行情缺失。
type EntryResult struct {
	Decision domain.Decision
	TimedOut bool
}

// OpportunityFinder 在周期截止前寻找入场机会。tick 与订单簿更新
// 都会触发一次评估，第一个可执行的决策即为最终结果；截止时间先到
// 则以超时收场。同一次搜索只会产生一个结果，之后的回调全部为空转。
type OpportunityFinder struct {
	prices PriceStream
	books  BookStream
	cfg    model.TailSweepConfig
	log    *logrus.Entry
}

func NewOpportunityFinder(prices PriceStream, books BookStream, cfg model.TailSweepConfig) *OpportunityFinder {
	return &OpportunityFinder{
		prices: prices,
		books:  books,
		cfg:    cfg,
		log:    logrus.WithField("component", "finder"),
	}
}

// FindEntry 阻塞直到找到可下注机会、周期截止或 ctx 取消
func (f *OpportunityFinder) FindEntry(ctx context.Context, symbol string, market *domain.Market, cycle domain.Cycle) EntryResult {
	resultCh := make(chan domain.Decision, 1)
	var once sync.Once

	evaluate := func(fallback bool) {
		ticks := f.prices.TickHistory(symbol)
		quotes := f.collectQuotes(ctx, market, fallback)
		remaining := cycle.Remaining(time.Now())
		decision := model.EvaluateTailSweep(ticks, cycle.PriceToBeat, remaining, quotes, f.cfg)
		if decision.ShouldBet {
			once.Do(func() {
				f.log.Infof("🎯 发现入场机会: side=%s winProb=%.4f edge=%.4f flipRisk=%.4f score=%.4f",
					decision.Side, decision.WinProbability, decision.Edge, decision.FlipRisk, decision.Score)
				resultCh <- decision
			})
		}
	}

	// tick 与订单簿双触发
	f.prices.OnPriceChange(symbol, func(domain.PriceTick, []domain.PriceTick) { evaluate(false) })
	for _, tokenID := range market.ClobTokenIDs {
		if tokenID != "" {
			f.books.OnBookChange(tokenID, func(domain.BookSnapshot) { evaluate(false) })
		}
	}

	// 注册回调后立即评估一次，避免行情在此之前已经就绪而死等；
	// 只有这一次允许走 REST 兜底取盘口
	evaluate(true)

	timer := time.NewTimer(cycle.Remaining(time.Now()))
	defer timer.Stop()

	select {
	case decision := <-resultCh:
		return EntryResult{Decision: decision}
	case <-timer.C:
		f.log.Infof("⏰ 入场搜索超时，本轮放弃")
		return EntryResult{Decision: domain.Decision{Side: domain.OutcomeNone}, TimedOut: true}
	case <-ctx.Done():
		return EntryResult{Decision: domain.Decision{Side: domain.OutcomeNone}, TimedOut: true}
	}
}

// collectQuotes 汇总两侧最优卖价。优先用缓存快照；fallback 为真时
// 允许走 REST 兜底（只用于首次评估，回调里不做阻塞请求）。
func (f *OpportunityFinder) collectQuotes(ctx context.Context, market *domain.Market, fallback bool) []model.SideQuote {
	quotes := make([]model.SideQuote, 0, 2)
	for _, side := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
		tokenID := market.TokenID(side)
		if tokenID == "" {
			continue
		}
		book, ok := f.books.LatestBook(tokenID)
		if ok {
			if ask, ok := book.BestAsk(); ok {
				quotes = append(quotes, model.SideQuote{Side: side, Price: ask.Price, Size: ask.Size})
			}
			continue
		}
		if !fallback {
			continue
		}
		ask, err := f.books.BestAsk(ctx, tokenID)
		if err != nil {
			f.log.Debugf("获取 %s 最优卖价失败: %v", side, err)
			continue
		}
		quotes = append(quotes, model.SideQuote{Side: side, Price: ask.Price, Size: ask.Size})
	}
	return quotes
}
