package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/internal/model"
	"github.com/betbot/cyclebet/pkg/config"
	"github.com/betbot/cyclebet/pkg/logger"
)

// 市场元数据/参考价就绪前的轮询间隔
const metadataRetryDelay = 10 * time.Second

// CycleController 驱动单个 15 分钟周期市场的完整交易流程：
// 等待收集窗口 → 连接行情 → 等待策略窗口 → 找机会/买入/盯盘/卖出
// 循环 → 断开行情 → 结算交接。每步的失败都只影响当前迭代。
type CycleController struct {
	cfg        *config.Config
	markets    MarketInfoProvider
	cyclePrice CyclePriceProvider
	settlement SettlementService
	prices     PriceFeed
	books      BookFeed
	executor   *OrderExecutor
	account    string // 资金账户（Safe 地址）
	log        *logrus.Entry
}

func NewCycleController(
	cfg *config.Config,
	markets MarketInfoProvider,
	cyclePrice CyclePriceProvider,
	gateway OrderGateway,
	settlementSvc SettlementService,
	prices PriceFeed,
	books BookFeed,
	account string,
) *CycleController {
	return &CycleController{
		cfg:        cfg,
		markets:    markets,
		cyclePrice: cyclePrice,
		settlement: settlementSvc,
		prices:     prices,
		books:      books,
		executor:   NewOrderExecutor(gateway, cfg.Executor),
		account:    account,
		log:        logrus.WithField("component", "controller"),
	}
}

// Run 逐周期运行直到 ctx 取消
func (c *CycleController) Run(ctx context.Context) error {
	for {
		intervalStart := domain.CurrentCycleStart(time.Now())
		if err := c.RunCycle(ctx, intervalStart); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Errorf("周期 %d 异常结束: %v", intervalStart, err)
		}

		// 下一周期从当前周期截止时刻开始
		next := time.Unix(intervalStart, 0).Add(domain.CycleDuration)
		if err := sleepUntil(ctx, next); err != nil {
			return err
		}
	}
}

// RunCycle 运行一个完整周期
func (c *CycleController) RunCycle(ctx context.Context, intervalStart int64) error {
	runID := uuid.NewString()[:8]
	logger.SetCycleTimestamp(intervalStart)
	log := c.log.WithField("run_id", runID)

	slug := domain.CycleSlug(intervalStart)
	log.Infof("🔄 周期开始: slug=%s deadline=%s", slug, time.Unix(intervalStart, 0).Add(domain.CycleDuration).Format(time.RFC3339))

	market, cycle, err := c.prepareCycle(ctx, intervalStart, slug, log)
	if err != nil {
		return err
	}
	deadline := cycle.Deadline()

	// 等到收集窗口再连行情，减少无意义的缓存占用
	if err := sleepUntil(ctx, deadline.Add(-c.cfg.Cycle.CollectOffset)); err != nil {
		return err
	}
	if err := c.connectFeeds(market); err != nil {
		log.Errorf("行情连接失败: %v", err)
		return err
	}
	defer c.disconnectFeeds()

	if err := sleepUntil(ctx, deadline.Add(-c.cfg.Cycle.StrategyOffset)); err != nil {
		return err
	}

	held := c.tradeLoop(ctx, market, cycle, log)

	c.disconnectFeeds()

	if held != nil {
		c.settleHeldPosition(ctx, market, cycle, held, log)
	}

	log.Infof("🏁 周期结束: slug=%s", slug)
	return nil
}

// prepareCycle 获取市场元数据与本周期参考价。上游数据就绪可能晚于
// 周期开始，失败时固定间隔重试直到截止前。
func (c *CycleController) prepareCycle(ctx context.Context, intervalStart int64, slug string, log *logrus.Entry) (*domain.Market, domain.Cycle, error) {
	cycle := domain.Cycle{IntervalStart: intervalStart, MarketSlug: slug}
	deadline := cycle.Deadline()

	var market *domain.Market
	for market == nil {
		if !time.Now().Before(deadline) {
			return nil, cycle, errors.New("市场元数据截止前未就绪")
		}
		m, err := c.markets.GetMarketBySlug(ctx, slug)
		if err != nil || m == nil {
			log.Warnf("市场元数据未就绪: slug=%s err=%v", slug, err)
			if serr := sleepFor(ctx, metadataRetryDelay); serr != nil {
				return nil, cycle, serr
			}
			continue
		}
		market = m
	}

	apiSymbol := apiSymbolOf(c.cfg.Feed.Symbol)
	for cycle.PriceToBeat <= 0 {
		if !time.Now().Before(deadline) {
			return nil, cycle, errors.New("参考价截止前未就绪")
		}
		price, err := c.cyclePrice.GetCycleOpenPrice(ctx, apiSymbol, intervalStart)
		if err != nil {
			log.Warnf("参考价未就绪: %v", err)
			if serr := sleepFor(ctx, metadataRetryDelay); serr != nil {
				return nil, cycle, serr
			}
			continue
		}
		cycle.PriceToBeat = price
	}

	log.Infof("📋 市场就绪: condition=%s priceToBeat=%.2f", market.ConditionID, cycle.PriceToBeat)
	return market, cycle, nil
}

func (c *CycleController) connectFeeds(market *domain.Market) error {
	if err := c.prices.Connect(); err != nil {
		return err
	}
	if err := c.prices.SubscribeSymbol(c.cfg.Feed.Symbol); err != nil {
		return err
	}
	if err := c.books.Connect(); err != nil {
		return err
	}
	assets := make([]string, 0, 2)
	for _, tokenID := range market.ClobTokenIDs {
		if tokenID != "" {
			assets = append(assets, tokenID)
		}
	}
	return c.books.SubscribeAssets(assets)
}

func (c *CycleController) disconnectFeeds() {
	c.prices.Disconnect()
	c.books.Disconnect()
}

// tradeLoop 在剩余时间内循环找机会、买入、盯盘、卖出。返回保持到
// 截止时间的仓位（没有则为 nil）。
func (c *CycleController) tradeLoop(ctx context.Context, market *domain.Market, cycle domain.Cycle, log *logrus.Entry) *domain.Position {
	strategy := c.cfg.Strategy
	tsCfg := model.TailSweepConfig{
		MinWinProbability: strategy.MinWinProbability,
		MinEdge:           strategy.MinEdge,
		MaxFlipRisk:       strategy.MaxFlipRisk,
		RiskAversion:      strategy.RiskAversion,
	}

	buys := 0
	for cycle.Remaining(time.Now()) > 0 && ctx.Err() == nil {
		held, err := c.currentPosition(ctx, market)
		if err != nil {
			log.Warnf("查询持仓失败: %v", err)
		}

		if held == nil {
			if buys >= strategy.MaxBuysPerCycle {
				log.Infof("已达到本周期最大入场次数 %d，停止搜索", strategy.MaxBuysPerCycle)
				return nil
			}

			finder := NewOpportunityFinder(c.prices, c.books, tsCfg)
			result := finder.FindEntry(ctx, c.cfg.Feed.Symbol, market, cycle)
			if !result.Decision.ShouldBet {
				// 超时和模型判定不下注殊途同归：本周期不再入场
				return nil
			}

			if c.cfg.DryRun {
				// 纸交易同样占用入场额度，避免整个策略窗口空转
				buys++
				log.Infof("🧪 纸交易模式: 跳过买入 %s %.2f USDC (%d/%d)",
					result.Decision.Side, c.cfg.Strategy.StakeUSDC, buys, strategy.MaxBuysPerCycle)
				continue
			}

			held = c.enterPosition(ctx, market, cycle, result.Decision, log)
			if held == nil {
				continue
			}
			buys++
		}

		monitor := NewExitMonitor(c.prices, strategy.HoldProbability)
		action := monitor.WaitForExit(ctx, c.cfg.Feed.Symbol, held.Outcome, cycle)
		if action == domain.ExitActionHold {
			return held
		}

		fill := c.executor.MustSell(ctx, held.TokenID, held.SizeMatched, cycle.Deadline())
		if fill == nil || fill.CumSize < held.SizeMatched-sellDustShares {
			log.Errorf("截止前未能完全清仓 %s，剩余仓位交由结算", held.Outcome)
			return held
		}
		log.Infof("✅ 清仓完成: %s size=%.4f avgPrice=%.4f", held.Outcome, fill.CumSize, fill.CumAvgPrice)
	}
	return nil
}

// enterPosition 按决策买入并返回建仓结果
func (c *CycleController) enterPosition(ctx context.Context, market *domain.Market, cycle domain.Cycle, decision domain.Decision, log *logrus.Entry) *domain.Position {
	tokenID := market.TokenID(decision.Side)
	if tokenID == "" {
		log.Errorf("找不到 %s 对应的 token", decision.Side)
		return nil
	}

	fill := c.executor.BuyEnough(ctx, tokenID, c.cfg.Strategy.StakeUSDC, cycle.Deadline())
	if fill == nil || !fill.Matched() {
		log.Warnf("买入 %s 未成交", decision.Side)
		return nil
	}

	return &domain.Position{
		TokenID:     tokenID,
		Outcome:     decision.Side,
		SizeMatched: fill.CumSize,
		AvgPrice:    fill.CumAvgPrice,
		Status:      domain.PositionStatusMatched,
		EntryTime:   time.Now(),
	}
}

// currentPosition 查询资金账户在本市场的已有持仓
func (c *CycleController) currentPosition(ctx context.Context, market *domain.Market) (*domain.Position, error) {
	pos, err := c.markets.GetOpenPosition(ctx, market.ConditionID, c.account)
	if err != nil {
		return nil, err
	}
	if pos == nil || !pos.IsOpen() {
		return nil, nil
	}
	if pos.Outcome == domain.OutcomeNone {
		pos.Outcome = market.OutcomeForToken(pos.TokenID)
	}
	return pos, nil
}

// settleHeldPosition 结算交接：等待结算延迟，轮询确认周期最终结果，
// 然后无论输赢都发起批量赎回（赎回接口会覆盖账户下全部可赎仓位）。
// 结算失败只记录日志，不影响后续周期。
func (c *CycleController) settleHeldPosition(ctx context.Context, market *domain.Market, cycle domain.Cycle, held *domain.Position, log *logrus.Entry) {
	if err := sleepFor(ctx, c.cfg.Cycle.SettlementDelay); err != nil {
		return
	}

	apiSymbol := apiSymbolOf(c.cfg.Feed.Symbol)
	won := false
	confirmed := false
	for i := 0; i < c.cfg.Cycle.OutcomeRetries; i++ {
		closePrice, err := c.cyclePrice.GetCycleClosePrice(ctx, apiSymbol, cycle.IntervalStart)
		if err != nil {
			log.Infof("等待周期结果确认(%d/%d): %v", i+1, c.cfg.Cycle.OutcomeRetries, err)
			if serr := sleepFor(ctx, c.cfg.Cycle.OutcomeInterval); serr != nil {
				return
			}
			continue
		}
		finalOutcome := domain.OutcomeDown
		if closePrice >= cycle.PriceToBeat {
			finalOutcome = domain.OutcomeUp
		}
		won = finalOutcome == held.Outcome
		confirmed = true
		log.Infof("🎲 周期结果: close=%.2f toBeat=%.2f outcome=%s held=%s won=%v",
			closePrice, cycle.PriceToBeat, finalOutcome, held.Outcome, won)
		break
	}
	if !confirmed {
		log.Warnf("周期结果未能确认，仍尝试赎回")
	}

	result, err := c.settlement.RedeemAll(ctx, c.account)
	if err != nil {
		log.Errorf("结算赎回失败: %v", err)
		return
	}
	log.Infof("💸 结算完成: attempted=%d redeemed=%d est=%.2f USDC", result.Attempted, result.Redeemed, result.TotalUSDC)
}

// apiSymbolOf 把行情流的 symbol（如 btc/usd）换成价格 API 的大写符号（BTC）
func apiSymbolOf(feedSymbol string) string {
	base := feedSymbol
	if i := strings.Index(feedSymbol, "/"); i > 0 {
		base = feedSymbol[:i]
	}
	return strings.ToUpper(base)
}

func sleepUntil(ctx context.Context, t time.Time) error {
	return sleepFor(ctx, time.Until(t))
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
