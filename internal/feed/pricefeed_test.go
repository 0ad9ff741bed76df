package feed

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/betbot/cyclebet/internal/domain"
)

func priceMessage(symbol string, ts int64, value float64) *Message {
	payload := fmt.Sprintf(`{"symbol":%q,"timestamp":%d,"value":%v}`, symbol, ts, value)
	return &Message{
		Topic:   TopicCryptoPrices,
		Type:    "update",
		Payload: json.RawMessage(payload),
	}
}

// 价格更新入缓存并按注册的符号分发，history 含本次 tick 且时间升序
func TestPriceFeedDispatch(t *testing.T) {
	f := NewCryptoPriceFeed(DefaultOptions())

	var lastTick domain.PriceTick
	var lastHistory []domain.PriceTick
	f.OnPriceChange("BTC/USD", func(tick domain.PriceTick, history []domain.PriceTick) {
		lastTick = tick
		lastHistory = history
	})

	// 乱序到达
	f.onMessage(priceMessage("btc/usd", 2000, 101))
	f.onMessage(priceMessage("btc/usd", 1000, 100))

	if lastTick.Timestamp != 1000 || lastTick.Value != 100 {
		t.Fatalf("最后一次回调的 tick 错误: %+v", lastTick)
	}
	if len(lastHistory) != 2 {
		t.Fatalf("history 长度错误: %d", len(lastHistory))
	}
	if lastHistory[0].Timestamp != 1000 || lastHistory[1].Timestamp != 2000 {
		t.Fatalf("history 应按时间升序: %+v", lastHistory)
	}

	latest, ok := f.LatestPrice("btc/usd")
	if !ok || latest.Timestamp != 1000 {
		t.Fatalf("LatestPrice 应返回最后缓存的 tick: %+v", latest)
	}
}

// 不同符号的回调互不串扰
func TestPriceFeedSymbolIsolation(t *testing.T) {
	f := NewCryptoPriceFeed(DefaultOptions())
	ethCalls := 0
	f.OnPriceChange("eth/usd", func(domain.PriceTick, []domain.PriceTick) { ethCalls++ })

	f.onMessage(priceMessage("btc/usd", 1000, 100))

	if ethCalls != 0 {
		t.Fatal("btc 更新不应触发 eth 回调")
	}
}

// 同一符号重复注册只保留最新回调，nil 注销
func TestPriceFeedHandlerReplaced(t *testing.T) {
	f := NewCryptoPriceFeed(DefaultOptions())
	oldCalls, newCalls := 0, 0
	f.OnPriceChange("btc/usd", func(domain.PriceTick, []domain.PriceTick) { oldCalls++ })
	f.OnPriceChange("btc/usd", func(domain.PriceTick, []domain.PriceTick) { newCalls++ })

	f.onMessage(priceMessage("btc/usd", 1000, 100))

	if oldCalls != 0 {
		t.Fatalf("旧回调应被替换, 实际触发 %d 次", oldCalls)
	}
	if newCalls != 1 {
		t.Fatalf("新回调应触发 1 次, 实际 %d 次", newCalls)
	}

	f.OnPriceChange("btc/usd", nil)
	f.onMessage(priceMessage("btc/usd", 2000, 101))
	if newCalls != 1 {
		t.Fatal("注销后不应再触发回调")
	}
}

// 缓存容量受限：超过上限后最旧的 tick 被淘汰
func TestPriceFeedHistoryBounded(t *testing.T) {
	opts := DefaultOptions()
	opts.CacheSize = 3
	f := NewCryptoPriceFeed(opts)

	for i := 1; i <= 4; i++ {
		f.onMessage(priceMessage("btc/usd", int64(i*1000), float64(100+i)))
	}

	history := f.TickHistory("btc/usd")
	if len(history) != 3 {
		t.Fatalf("history 应被限制为 3, 实际 %d", len(history))
	}
	if history[0].Timestamp != 2000 {
		t.Fatalf("最旧 tick 应被淘汰, 首条时间戳 %d", history[0].Timestamp)
	}
}

// 回调 panic 不应中断消息分发
func TestPriceFeedHandlerPanicRecovered(t *testing.T) {
	f := NewCryptoPriceFeed(DefaultOptions())
	f.OnPriceChange("btc/usd", func(domain.PriceTick, []domain.PriceTick) {
		panic("boom")
	})

	msg := priceMessage("btc/usd", 1000, 100)
	f.dispatch(msg)

	if f.Cache().Len("btc/usd") != 1 {
		t.Fatal("panic 回调不应阻止 tick 入缓存")
	}
}
