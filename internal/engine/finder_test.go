package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/internal/feed"
	"github.com/betbot/cyclebet/internal/model"
)

// fakePriceStream 手动推送 tick 的行情流。与真实数据流一致，
// 每个符号只保留最新注册的回调。
type fakePriceStream struct {
	mu       sync.Mutex
	handlers map[string]feed.PriceHandler
	ticks    map[string][]domain.PriceTick
}

func newFakePriceStream() *fakePriceStream {
	return &fakePriceStream{
		handlers: make(map[string]feed.PriceHandler),
		ticks:    make(map[string][]domain.PriceTick),
	}
}

func (s *fakePriceStream) OnPriceChange(symbol string, h feed.PriceHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, symbol)
		return
	}
	s.handlers[symbol] = h
}

func (s *fakePriceStream) TickHistory(symbol string) []domain.PriceTick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PriceTick(nil), s.ticks[symbol]...)
}

// Push 追加一个 tick 并触发回调
func (s *fakePriceStream) Push(symbol string, value float64, ts int64) {
	s.mu.Lock()
	tick := domain.PriceTick{Value: value, Timestamp: ts}
	s.ticks[symbol] = append(s.ticks[symbol], tick)
	h := s.handlers[symbol]
	history := append([]domain.PriceTick(nil), s.ticks[symbol]...)
	s.mu.Unlock()

	if h != nil {
		h(tick, history)
	}
}

// fakeBookStream 固定快照的订单簿流，每个 token 只保留最新回调
type fakeBookStream struct {
	mu       sync.Mutex
	handlers map[string]feed.BookHandler
	books    map[string]domain.BookSnapshot
}

func newFakeBookStream() *fakeBookStream {
	return &fakeBookStream{
		handlers: make(map[string]feed.BookHandler),
		books:    make(map[string]domain.BookSnapshot),
	}
}

func (s *fakeBookStream) OnBookChange(assetID string, h feed.BookHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		delete(s.handlers, assetID)
		return
	}
	s.handlers[assetID] = h
}

func (s *fakeBookStream) LatestBook(assetID string) (domain.BookSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[assetID]
	return b, ok
}

func (s *fakeBookStream) BestAsk(_ context.Context, assetID string) (domain.BookLevel, error) {
	if b, ok := s.LatestBook(assetID); ok {
		if ask, ok := b.BestAsk(); ok {
			return ask, nil
		}
	}
	return domain.BookLevel{}, fmt.Errorf("no book for %s", assetID)
}

// Publish 更新快照并触发回调
func (s *fakeBookStream) Publish(assetID string, book domain.BookSnapshot) {
	s.mu.Lock()
	s.books[assetID] = book
	h := s.handlers[assetID]
	s.mu.Unlock()

	if h != nil {
		h(book)
	}
}

func askBook(assetID string, price, size float64) domain.BookSnapshot {
	return domain.BookSnapshot{
		AssetID: assetID,
		Asks:    []domain.BookLevel{{Price: price, Size: size}},
		Bids:    []domain.BookLevel{{Price: price - 0.03, Size: size}},
	}
}

func testMarket() *domain.Market {
	return &domain.Market{
		ConditionID:  "0xc0ffee",
		Slug:         "btc-updown-15m-1756600200",
		ClobTokenIDs: [2]string{"token-up", "token-down"},
		Outcomes:     [2]string{"Up", "Down"},
	}
}

func testCycle(remaining time.Duration) domain.Cycle {
	start := time.Now().Add(remaining - domain.CycleDuration)
	return domain.Cycle{
		IntervalStart: start.Unix(),
		MarketSlug:    "btc-updown-15m-test",
		PriceToBeat:   100,
	}
}

// pushRisingHistory 推送 100→110 的单调上涨序列
func pushRisingHistory(s *fakePriceStream, symbol string, n int) {
	base := time.Now().Add(-5 * time.Minute).UnixMilli()
	for i := 0; i < n; i++ {
		value := 100 + 10*float64(i)/float64(n-1)
		s.Push(symbol, value, base+int64(i)*30_000)
	}
}

func TestFindEntryResolvesOnTick(t *testing.T) {
	prices := newFakePriceStream()
	books := newFakeBookStream()
	books.books["token-up"] = askBook("token-up", 0.60, 100)
	books.books["token-down"] = askBook("token-down", 0.42, 100)

	finder := NewOpportunityFinder(prices, books, model.DefaultTailSweepConfig())

	done := make(chan EntryResult, 1)
	go func() {
		done <- finder.FindEntry(context.Background(), "btc/usd", testMarket(), testCycle(4*time.Minute))
	}()

	// 等回调注册完成后推送强上涨行情
	time.Sleep(50 * time.Millisecond)
	pushRisingHistory(prices, "btc/usd", 11)

	select {
	case result := <-done:
		if result.TimedOut {
			t.Fatal("不应超时")
		}
		if !result.Decision.ShouldBet || result.Decision.Side != domain.OutcomeUp {
			t.Fatalf("应建议买入 Up: %+v", result.Decision)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FindEntry 未返回")
	}
}

func TestFindEntryTimesOutWithoutData(t *testing.T) {
	prices := newFakePriceStream()
	books := newFakeBookStream()
	finder := NewOpportunityFinder(prices, books, model.DefaultTailSweepConfig())

	// 整个窗口没有任何行情，必须以超时收场而不是挂死
	result := finder.FindEntry(context.Background(), "btc/usd", testMarket(), testCycle(100*time.Millisecond))
	if !result.TimedOut {
		t.Fatal("无行情时应超时")
	}
	if result.Decision.ShouldBet {
		t.Fatalf("超时不应给出下注建议: %+v", result.Decision)
	}
}

func TestFindEntryResolvesOnce(t *testing.T) {
	prices := newFakePriceStream()
	books := newFakeBookStream()
	books.books["token-up"] = askBook("token-up", 0.60, 100)
	books.books["token-down"] = askBook("token-down", 0.42, 100)

	finder := NewOpportunityFinder(prices, books, model.DefaultTailSweepConfig())

	done := make(chan EntryResult, 1)
	go func() {
		done <- finder.FindEntry(context.Background(), "btc/usd", testMarket(), testCycle(4*time.Minute))
	}()

	time.Sleep(50 * time.Millisecond)
	pushRisingHistory(prices, "btc/usd", 11)
	<-done

	// 结果产生后继续触发回调必须是空转，不 panic 也不阻塞
	pushRisingHistory(prices, "btc/usd", 11)
	books.Publish("token-up", askBook("token-up", 0.58, 100))
}

func TestFindEntryBookTriggered(t *testing.T) {
	prices := newFakePriceStream()
	books := newFakeBookStream()

	// 行情历史先就绪，但盘口缺失 → 首次评估不可执行
	base := time.Now().Add(-5 * time.Minute).UnixMilli()
	for i := 0; i < 11; i++ {
		prices.ticks["btc/usd"] = append(prices.ticks["btc/usd"], domain.PriceTick{
			Value:     100 + float64(i),
			Timestamp: base + int64(i)*30_000,
		})
	}

	finder := NewOpportunityFinder(prices, books, model.DefaultTailSweepConfig())

	done := make(chan EntryResult, 1)
	go func() {
		done <- finder.FindEntry(context.Background(), "btc/usd", testMarket(), testCycle(4*time.Minute))
	}()

	// 盘口到达时应由订单簿回调触发评估
	time.Sleep(50 * time.Millisecond)
	books.Publish("token-up", askBook("token-up", 0.60, 100))

	select {
	case result := <-done:
		if !result.Decision.ShouldBet || result.Decision.Side != domain.OutcomeUp {
			t.Fatalf("订单簿触发评估失败: %+v", result.Decision)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FindEntry 未返回")
	}
}

func TestWaitForExitSellOnFlip(t *testing.T) {
	prices := newFakePriceStream()
	monitor := NewExitMonitor(prices, 0.8)

	done := make(chan domain.ExitAction, 1)
	go func() {
		done <- monitor.WaitForExit(context.Background(), "btc/usd", domain.OutcomeUp, testCycle(2*time.Minute))
	}()

	// 价格从 100 跌到 92：瞬时结果翻转且持仓胜率崩塌
	time.Sleep(50 * time.Millisecond)
	base := time.Now().Add(-5 * time.Minute).UnixMilli()
	for i := 0; i < 11; i++ {
		prices.Push("btc/usd", 100-8*float64(i)/10, base+int64(i)*30_000)
	}

	select {
	case action := <-done:
		if action != domain.ExitActionSell {
			t.Fatalf("翻转后应建议卖出: %s", action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForExit 未返回")
	}
}

func TestWaitForExitHoldToDeadline(t *testing.T) {
	prices := newFakePriceStream()
	monitor := NewExitMonitor(prices, 0.8)

	// 价格稳稳高于参考价 → 一直持有直到截止
	go func() {
		time.Sleep(20 * time.Millisecond)
		base := time.Now().Add(-5 * time.Minute).UnixMilli()
		for i := 0; i < 11; i++ {
			prices.Push("btc/usd", 108+float64(i)/10, base+int64(i)*30_000)
		}
	}()

	action := monitor.WaitForExit(context.Background(), "btc/usd", domain.OutcomeUp, testCycle(300*time.Millisecond))
	if action != domain.ExitActionHold {
		t.Fatalf("盈利仓位应持有到截止: %s", action)
	}
}
