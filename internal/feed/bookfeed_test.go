package feed

import (
	"encoding/json"
	"testing"

	"github.com/betbot/cyclebet/internal/domain"
)

func bookMessage(t *testing.T, payload string) *Message {
	t.Helper()
	return &Message{
		Topic:   TopicClobMarket,
		Type:    TypeAggOrderbook,
		Payload: json.RawMessage(payload),
	}
}

// 全量快照（event_type=book）应入缓存并触发回调
func TestBookFeedSnapshotDispatch(t *testing.T) {
	f := NewOrderBookFeed(DefaultOptions(), nil)

	var got domain.BookSnapshot
	calls := 0
	f.OnBookChange("token-1", func(b domain.BookSnapshot) {
		got = b
		calls++
	})

	f.onMessage(bookMessage(t, `{
		"event_type":"book",
		"asset_id":"token-1",
		"market":"0xabc",
		"bids":[{"price":"0.40","size":"100"},{"price":"0.42","size":"50"}],
		"asks":[{"price":"0.48","size":"80"},{"price":"0.45","size":"30"}],
		"timestamp":"1717000000000",
		"hash":"h1"
	}`))

	if calls != 1 {
		t.Fatalf("回调应触发 1 次, 实际 %d", calls)
	}
	ask, ok := got.BestAsk()
	if !ok || ask.Price != 0.45 || ask.Size != 30 {
		t.Fatalf("最优卖价错误: %+v", ask)
	}
	bid, ok := got.BestBid()
	if !ok || bid.Price != 0.42 {
		t.Fatalf("最优买价错误: %+v", bid)
	}

	cached, ok := f.LatestBook("token-1")
	if !ok || cached.Hash != "h1" {
		t.Fatalf("快照未入缓存: %+v", cached)
	}
}

// 增量事件（price_change 等）不进缓存也不触发回调
func TestBookFeedIgnoresNonBookEvents(t *testing.T) {
	f := NewOrderBookFeed(DefaultOptions(), nil)
	calls := 0
	f.OnBookChange("token-1", func(domain.BookSnapshot) { calls++ })

	f.onMessage(bookMessage(t, `{"event_type":"price_change","asset_id":"token-1"}`))

	if calls != 0 {
		t.Fatal("非 book 事件不应触发回调")
	}
	if _, ok := f.LatestBook("token-1"); ok {
		t.Fatal("非 book 事件不应入缓存")
	}
}

// 同一 token 重复注册只保留最新回调
func TestBookFeedHandlerReplaced(t *testing.T) {
	f := NewOrderBookFeed(DefaultOptions(), nil)
	oldCalls, newCalls := 0, 0
	f.OnBookChange("token-1", func(domain.BookSnapshot) { oldCalls++ })
	f.OnBookChange("token-1", func(domain.BookSnapshot) { newCalls++ })

	f.onMessage(bookMessage(t, `{"event_type":"book","asset_id":"token-1","bids":[],"asks":[],"timestamp":"1"}`))

	if oldCalls != 0 || newCalls != 1 {
		t.Fatalf("重复注册应替换旧回调: old=%d new=%d", oldCalls, newCalls)
	}
}

// 缓存为空且无兜底时 BestAsk 应返回错误
func TestBookFeedBestAskNoFallback(t *testing.T) {
	f := NewOrderBookFeed(DefaultOptions(), nil)
	if _, err := f.BestAsk(t.Context(), "token-x"); err == nil {
		t.Fatal("期望错误")
	}
}

// 无效档位（非数字价格）应被跳过而非让整条快照失败
func TestParseLevelsSkipsInvalid(t *testing.T) {
	levels := parseLevels([]bookLevelWire{
		{Price: "0.50", Size: "10"},
		{Price: "bad", Size: "10"},
		{Price: "0.30", Size: "x"},
	}, true)
	if len(levels) != 1 || levels[0].Price != 0.50 {
		t.Fatalf("期望仅保留合法档位, 实际 %+v", levels)
	}
}
