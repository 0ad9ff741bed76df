package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/cyclebet/clob/types"
	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/pkg/config"
)

// 卖出时剩余份额低于该值视为清仓完成
const sellDustShares = 0.01

// OrderExecutor 订单执行器。入场按有限次拆单买入，离场无限重试卖出，
// 两者都只受周期截止时间约束，网络/交易所错误一律视为瞬态。
type OrderExecutor struct {
	gateway OrderGateway
	cfg     config.ExecutorConfig
	log     *logrus.Entry
}

func NewOrderExecutor(gateway OrderGateway, cfg config.ExecutorConfig) *OrderExecutor {
	return &OrderExecutor{
		gateway: gateway,
		cfg:     cfg,
		log:     logrus.WithField("component", "executor"),
	}
}

// BuyEnough 分批市价买入，直到花完 totalUSDC、剩余金额降到尘埃线以下
// 或截止时间到。返回带累计成交量与累计均价的最后一笔成交；完全没有
// 成交时返回 nil。
func (e *OrderExecutor) BuyEnough(ctx context.Context, tokenID string, totalUSDC float64, deadline time.Time) *domain.OrderFill {
	remaining := decimal.NewFromFloat(totalUSDC)
	dust := decimal.NewFromFloat(e.cfg.DustUSDC)
	cumSize := decimal.Zero
	cumVolume := decimal.Zero // Σ(size×price)，算加权均价用

	var last *domain.OrderFill

	for split := 0; split < e.cfg.MaxSplits; split++ {
		if remaining.LessThan(dust) || !time.Now().Before(deadline) {
			break
		}

		amount, _ := remaining.Round(2).Float64()
		fill := e.tryBuy(ctx, tokenID, amount, deadline)
		if fill == nil {
			e.log.Warnf("第 %d 次拆单未成交: token=%s 剩余=%s USDC", split+1, tokenID, remaining.StringFixed(2))
			continue
		}

		size := decimal.NewFromFloat(fill.SizeMatched)
		price := decimal.NewFromFloat(fill.AvgPrice)
		cumSize = cumSize.Add(size)
		cumVolume = cumVolume.Add(size.Mul(price))
		remaining = remaining.Sub(size.Mul(price))

		fill.CumSize, _ = cumSize.Float64()
		if cumSize.IsPositive() {
			fill.CumAvgPrice, _ = cumVolume.Div(cumSize).Float64()
		}
		last = fill

		e.log.Infof("💰 买入成交: token=%s size=%.4f price=%.4f 累计=%.4f@%.4f",
			tokenID, fill.SizeMatched, fill.AvgPrice, fill.CumSize, fill.CumAvgPrice)
	}
	return last
}

// tryBuy 一次拆单内的有限重试买入
func (e *OrderExecutor) tryBuy(ctx context.Context, tokenID string, amountUSDC float64, deadline time.Time) *domain.OrderFill {
	for attempt := 0; attempt < e.cfg.RetriesPerSplit; attempt++ {
		if !time.Now().Before(deadline) {
			return nil
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(e.cfg.RetryDelay):
			}
		}

		fill, err := e.placeMarketOrder(ctx, tokenID, types.SideBuy, amountUSDC)
		if err != nil {
			e.log.Warnf("买入失败(第 %d 次): %v", attempt+1, err)
			continue
		}
		if fill != nil && fill.Matched() {
			return fill
		}
	}
	return nil
}

// MustSell 不计代价清仓：无限重试市价卖出，仅受截止时间约束。
// 截止前未能全部成交时返回已成交部分（可能为 nil），仓位留待结算。
func (e *OrderExecutor) MustSell(ctx context.Context, tokenID string, shares float64, deadline time.Time) *domain.OrderFill {
	remaining := decimal.NewFromFloat(shares)
	cumSize := decimal.Zero
	cumVolume := decimal.Zero

	var last *domain.OrderFill

	for time.Now().Before(deadline) {
		if f, _ := remaining.Float64(); f < sellDustShares {
			break
		}

		amount, _ := remaining.Float64()
		fill, err := e.placeMarketOrder(ctx, tokenID, types.SideSell, amount)
		if err != nil || fill == nil || !fill.Matched() {
			if err != nil {
				e.log.Warnf("卖出失败，继续重试: %v", err)
			}
			select {
			case <-ctx.Done():
				return last
			case <-time.After(e.cfg.RetryDelay):
			}
			continue
		}

		size := decimal.NewFromFloat(fill.SizeMatched)
		price := decimal.NewFromFloat(fill.AvgPrice)
		cumSize = cumSize.Add(size)
		cumVolume = cumVolume.Add(size.Mul(price))
		remaining = remaining.Sub(size)

		fill.CumSize, _ = cumSize.Float64()
		if cumSize.IsPositive() {
			fill.CumAvgPrice, _ = cumVolume.Div(cumSize).Float64()
		}
		last = fill

		e.log.Infof("🏃 卖出成交: token=%s size=%.4f price=%.4f 剩余=%s",
			tokenID, fill.SizeMatched, fill.AvgPrice, remaining.StringFixed(4))
	}
	return last
}

// placeMarketOrder 提交一笔 FAK 市价单并解析成交结果
func (e *OrderExecutor) placeMarketOrder(ctx context.Context, tokenID string, side types.Side, amount float64) (*domain.OrderFill, error) {
	resp, err := e.gateway.PostMarketOrder(ctx, &types.UserMarketOrder{
		TokenID:   tokenID,
		Amount:    amount,
		Side:      side,
		OrderType: types.OrderTypeFAK,
	}, types.TickSize001, false)
	if err != nil {
		return nil, err
	}
	if !resp.Filled() {
		// FAK 被 kill 时交易所仍返回 success=true，按未成交处理
		return &domain.OrderFill{OrderID: resp.OrderID, TokenID: tokenID}, nil
	}
	return e.resolveFill(ctx, tokenID, side, resp), nil
}

// resolveFill 从下单响应或订单查询接口解析成交量与均价。
// BUY 的 makingAmount 是花出的 USDC、takingAmount 是买到的份额，
// SELL 则相反。
func (e *OrderExecutor) resolveFill(ctx context.Context, tokenID string, side types.Side, resp *types.OrderResponse) *domain.OrderFill {
	making := parseAmount(resp.MakingAmount)
	taking := parseAmount(resp.TakingAmount)

	var size, volume float64
	if side == types.SideBuy {
		size, volume = taking, making
	} else {
		size, volume = making, taking
	}

	if size > 0 {
		return &domain.OrderFill{
			OrderID:     resp.OrderID,
			TokenID:     tokenID,
			SizeMatched: size,
			AvgPrice:    volume / size,
		}
	}

	// 响应缺少成交量时轮询订单状态兜底
	return e.pollFill(ctx, tokenID, resp.OrderID)
}

// pollFill 轮询订单直到查到成交量或超时
func (e *OrderExecutor) pollFill(ctx context.Context, tokenID, orderID string) *domain.OrderFill {
	deadline := time.Now().Add(e.cfg.PollTimeout)
	for time.Now().Before(deadline) {
		order, err := e.gateway.GetOrder(ctx, orderID)
		if err == nil && order != nil {
			size := parseAmount(order.SizeMatched)
			if size > 0 {
				return &domain.OrderFill{
					OrderID:     orderID,
					TokenID:     tokenID,
					SizeMatched: size,
					AvgPrice:    parseAmount(order.Price),
				}
			}
			if strings.EqualFold(order.Status, "unmatched") || strings.EqualFold(order.Status, "canceled") {
				return &domain.OrderFill{OrderID: orderID, TokenID: tokenID}
			}
		}

		select {
		case <-ctx.Done():
			return &domain.OrderFill{OrderID: orderID, TokenID: tokenID}
		case <-time.After(e.cfg.PollInterval):
		}
	}
	return &domain.OrderFill{OrderID: orderID, TokenID: tokenID}
}

func parseAmount(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
