package feed

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/betbot/cyclebet/internal/domain"
)

// BookHandler 订单簿更新回调
type BookHandler func(book domain.BookSnapshot)

// BookSummaryProvider REST 兜底接口：数据流没有缓存时从 CLOB 拉一次快照
type BookSummaryProvider interface {
	GetOrderBookSummary(ctx context.Context, tokenID string) (*domain.BookSnapshot, error)
}

// OrderBookFeed 聚合订单簿数据流。按 asset_id 缓存快照（event_type 为
// book 的全量事件），并支持 REST 兜底读取最优卖价。
type OrderBookFeed struct {
	*Client

	fallback BookSummaryProvider

	handlers   map[string]BookHandler // asset_id -> 单一回调
	handlersMu sync.RWMutex
}

// NewOrderBookFeed 创建订单簿数据流客户端。fallback 可为 nil。
func NewOrderBookFeed(opts Options, fallback BookSummaryProvider) *OrderBookFeed {
	f := &OrderBookFeed{
		Client:   NewClient(opts, "orderbook"),
		fallback: fallback,
		handlers: make(map[string]BookHandler),
	}
	f.Client.handler = f.onMessage
	return f
}

// SubscribeAssets 订阅一组 token 的聚合订单簿
func (f *OrderBookFeed) SubscribeAssets(assetIDs []string) error {
	if len(assetIDs) == 0 {
		return errors.New("assetIDs is empty")
	}
	filters, err := json.Marshal(assetIDs)
	if err != nil {
		return errors.Wrap(err, "编码订阅过滤器失败")
	}
	return f.Subscribe([]Subscription{{
		Topic:   TopicClobMarket,
		Type:    TypeAggOrderbook,
		Filters: string(filters),
	}})
}

// OnBookChange 注册某个 token 的订单簿回调。每个 token 只保留一个回调，
// 再次注册会替换旧的；h 为 nil 时注销。
func (f *OrderBookFeed) OnBookChange(assetID string, h BookHandler) {
	f.handlersMu.Lock()
	if h == nil {
		delete(f.handlers, assetID)
	} else {
		f.handlers[assetID] = h
	}
	f.handlersMu.Unlock()
}

// LatestBook 返回 token 的最新缓存快照
func (f *OrderBookFeed) LatestBook(assetID string) (domain.BookSnapshot, bool) {
	entry, ok := f.cache.Latest(assetID)
	if !ok {
		return domain.BookSnapshot{}, false
	}
	book, ok := entry.Payload.(domain.BookSnapshot)
	return book, ok
}

// BestAsk 返回 token 的最优卖价。缓存没有时走 REST 兜底（结果不入缓存）。
func (f *OrderBookFeed) BestAsk(ctx context.Context, assetID string) (domain.BookLevel, error) {
	if book, ok := f.LatestBook(assetID); ok {
		if ask, ok := book.BestAsk(); ok {
			return ask, nil
		}
	}
	if f.fallback == nil {
		return domain.BookLevel{}, errors.New("no cached book and no fallback provider")
	}
	book, err := f.fallback.GetOrderBookSummary(ctx, assetID)
	if err != nil {
		return domain.BookLevel{}, errors.Wrap(err, "REST 兜底获取订单簿失败")
	}
	ask, ok := book.BestAsk()
	if !ok {
		return domain.BookLevel{}, errors.New("order book has no asks")
	}
	return ask, nil
}

// Disconnect 断开连接并清理已注册回调
func (f *OrderBookFeed) Disconnect() {
	f.handlersMu.Lock()
	f.handlers = make(map[string]BookHandler)
	f.handlersMu.Unlock()
	f.Client.Disconnect()
}

// onMessage 解析订单簿消息。只有 event_type 为 book 的全量快照进缓存，
// price_change 等增量事件忽略。
func (f *OrderBookFeed) onMessage(msg *Message) {
	if msg.Topic != TopicClobMarket {
		return
	}
	var payload bookPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		f.log.Debugf("订单簿载荷解析失败: %v", err)
		return
	}
	if payload.EventType != "book" || payload.AssetID == "" {
		return
	}

	book := domain.BookSnapshot{
		AssetID:   payload.AssetID,
		Market:    payload.Market,
		Bids:      parseLevels(payload.Bids, false),
		Asks:      parseLevels(payload.Asks, true),
		Timestamp: int64(payload.Timestamp.Float64()),
		Hash:      payload.Hash,
	}
	f.cache.Insert(payload.AssetID, book)

	f.handlersMu.RLock()
	h := f.handlers[payload.AssetID]
	f.handlersMu.RUnlock()

	if h != nil {
		h(book)
	}
}

// parseLevels 解析档位并整理为最优档在末尾的顺序
// （bids 升序、asks 降序，desc 控制方向）
func parseLevels(wire []bookLevelWire, desc bool) []domain.BookLevel {
	levels := make([]domain.BookLevel, 0, len(wire))
	for _, w := range wire {
		price, err := strconv.ParseFloat(w.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(w.Size, 64)
		if err != nil {
			continue
		}
		levels = append(levels, domain.BookLevel{Price: price, Size: size})
	}
	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels
}
