// Package engine 把行情、模型与下单拼成每 15 分钟一个周期的完整交易流程。
package engine

import (
	"context"

	"github.com/betbot/cyclebet/clob/types"
	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/internal/feed"
	"github.com/betbot/cyclebet/internal/settlement"
)

// MarketInfoProvider 市场元数据与持仓查询
type MarketInfoProvider interface {
	GetMarketBySlug(ctx context.Context, slug string) (*domain.Market, error)
	GetOpenPosition(ctx context.Context, conditionID, account string) (*domain.Position, error)
}

// CyclePriceProvider 周期参考价/收盘价查询
type CyclePriceProvider interface {
	GetCycleOpenPrice(ctx context.Context, symbol string, intervalStart int64) (float64, error)
	GetCycleClosePrice(ctx context.Context, symbol string, intervalStart int64) (float64, error)
}

// OrderGateway 下单与订单查询
type OrderGateway interface {
	PostMarketOrder(ctx context.Context, order *types.UserMarketOrder, tickSize types.TickSize, negRisk bool) (*types.OrderResponse, error)
	GetOrder(ctx context.Context, orderID string) (*types.OpenOrder, error)
	GetOrderBookSummary(ctx context.Context, tokenID string) (*domain.BookSnapshot, error)
}

// SettlementService 结算赎回
type SettlementService interface {
	RedeemAll(ctx context.Context, fundingAccount string) (*settlement.RedeemResult, error)
}

// PriceStream 参考价行情流（只读侧）
type PriceStream interface {
	OnPriceChange(symbol string, h feed.PriceHandler)
	TickHistory(symbol string) []domain.PriceTick
}

// BookStream 订单簿行情流（只读侧）
type BookStream interface {
	OnBookChange(assetID string, h feed.BookHandler)
	LatestBook(assetID string) (domain.BookSnapshot, bool)
	BestAsk(ctx context.Context, assetID string) (domain.BookLevel, error)
}

// PriceFeed 带生命周期管理的参考价行情流
type PriceFeed interface {
	PriceStream
	Connect() error
	SubscribeSymbol(symbol string) error
	Disconnect()
}

// BookFeed 带生命周期管理的订单簿行情流
type BookFeed interface {
	BookStream
	Connect() error
	SubscribeAssets(assetIDs []string) error
	Disconnect()
}
