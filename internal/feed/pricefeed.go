package feed

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/betbot/cyclebet/internal/domain"
)

// PriceHandler 价格更新回调。tick 为本次更新，history 为含本次在内的
// 时间升序缓存快照。
type PriceHandler func(tick domain.PriceTick, history []domain.PriceTick)

// CryptoPriceFeed Chainlink 参考价数据流。按符号缓存价格序列，
// 每条更新串行推给已注册回调。
type CryptoPriceFeed struct {
	*Client

	handlers   map[string]PriceHandler // symbol -> 单一回调
	handlersMu sync.RWMutex
}

// NewCryptoPriceFeed 创建价格数据流客户端
func NewCryptoPriceFeed(opts Options) *CryptoPriceFeed {
	f := &CryptoPriceFeed{
		Client:   NewClient(opts, "crypto_prices"),
		handlers: make(map[string]PriceHandler),
	}
	f.Client.handler = f.onMessage
	return f
}

// SubscribeSymbol 订阅某个符号（如 "btc/usd"）的价格更新
func (f *CryptoPriceFeed) SubscribeSymbol(symbol string) error {
	symbol = strings.ToLower(symbol)
	filters, err := json.Marshal(map[string]string{"symbol": symbol})
	if err != nil {
		return fmt.Errorf("编码订阅过滤器失败: %w", err)
	}
	return f.Subscribe([]Subscription{{
		Topic:   TopicCryptoPrices,
		Type:    "update",
		Filters: string(filters),
	}})
}

// OnPriceChange 注册某个符号的价格回调。每个符号只保留一个回调，
// 再次注册会替换旧的；h 为 nil 时注销。
func (f *CryptoPriceFeed) OnPriceChange(symbol string, h PriceHandler) {
	symbol = strings.ToLower(symbol)
	f.handlersMu.Lock()
	if h == nil {
		delete(f.handlers, symbol)
	} else {
		f.handlers[symbol] = h
	}
	f.handlersMu.Unlock()
}

// LatestPrice 返回符号的最新缓存价格
func (f *CryptoPriceFeed) LatestPrice(symbol string) (domain.PriceTick, bool) {
	entry, ok := f.cache.Latest(strings.ToLower(symbol))
	if !ok {
		return domain.PriceTick{}, false
	}
	tick, ok := entry.Payload.(domain.PriceTick)
	return tick, ok
}

// TickHistory 返回符号的缓存价格序列（时间升序）
func (f *CryptoPriceFeed) TickHistory(symbol string) []domain.PriceTick {
	return f.history(strings.ToLower(symbol))
}

func (f *CryptoPriceFeed) history(symbol string) []domain.PriceTick {
	entries := f.cache.List(symbol)
	ticks := make([]domain.PriceTick, 0, len(entries))
	for _, e := range entries {
		if t, ok := e.Payload.(domain.PriceTick); ok {
			ticks = append(ticks, t)
		}
	}
	return domain.SortTicksByTime(ticks)
}

// Disconnect 断开连接并清理已注册回调
func (f *CryptoPriceFeed) Disconnect() {
	f.handlersMu.Lock()
	f.handlers = make(map[string]PriceHandler)
	f.handlersMu.Unlock()
	f.Client.Disconnect()
}

// onMessage 解析价格消息，入缓存并分发
func (f *CryptoPriceFeed) onMessage(msg *Message) {
	if msg.Topic != TopicCryptoPrices {
		return
	}
	var payload cryptoPricePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		f.log.Debugf("价格载荷解析失败: %v", err)
		return
	}
	if payload.Symbol == "" {
		return
	}

	symbol := strings.ToLower(payload.Symbol)
	tick := domain.PriceTick{
		Value:     payload.Value.Float64(),
		Timestamp: payload.Timestamp,
	}
	f.cache.Insert(symbol, tick)

	f.handlersMu.RLock()
	h := f.handlers[symbol]
	f.handlersMu.RUnlock()
	if h == nil {
		return
	}

	h(tick, f.history(symbol))
}
