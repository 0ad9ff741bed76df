package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/pkg/config"
)

func TestApiSymbolOf(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"btc/usd", "BTC"},
		{"eth/usd", "ETH"},
		{"BTC/USD", "BTC"},
		{"btc", "BTC"},
	}
	for _, tc := range cases {
		if got := apiSymbolOf(tc.in); got != tc.want {
			t.Fatalf("apiSymbolOf(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSleepForNonPositive(t *testing.T) {
	start := time.Now()
	if err := sleepFor(context.Background(), -time.Second); err != nil {
		t.Fatalf("负时长不应报错: %v", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("负时长应立即返回")
	}
}

func TestSleepForCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleepFor(ctx, time.Minute); err == nil {
		t.Fatal("取消的 ctx 应返回错误")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("取消的 ctx 应立即返回")
	}
}

type fakeMarketInfo struct {
	market        *domain.Market
	position      *domain.Position
	positionCalls int
}

func (f *fakeMarketInfo) GetMarketBySlug(context.Context, string) (*domain.Market, error) {
	return f.market, nil
}

func (f *fakeMarketInfo) GetOpenPosition(context.Context, string, string) (*domain.Position, error) {
	f.positionCalls++
	return f.position, nil
}

// fakePriceFeed / fakeBookFeed 在只读行情流上补齐生命周期方法
type fakePriceFeed struct{ *fakePriceStream }

func (f *fakePriceFeed) Connect() error               { return nil }
func (f *fakePriceFeed) SubscribeSymbol(string) error { return nil }
func (f *fakePriceFeed) Disconnect()                  {}

type fakeBookFeed struct{ *fakeBookStream }

func (f *fakeBookFeed) Connect() error                 { return nil }
func (f *fakeBookFeed) SubscribeAssets([]string) error { return nil }
func (f *fakeBookFeed) Disconnect()                    {}

func testLogEntry() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newLoopController 组装一个行情可立即触发入场的控制器：
// 上涨历史已就绪、两侧盘口已缓存
func newLoopController(cfg *config.Config, gw *fakeGateway) (*CycleController, *fakeMarketInfo, *fakePriceStream) {
	prices := newFakePriceStream()
	books := newFakeBookStream()
	base := time.Now().Add(-5 * time.Minute).UnixMilli()
	for i := 0; i < 11; i++ {
		prices.ticks["btc/usd"] = append(prices.ticks["btc/usd"], domain.PriceTick{
			Value:     100 + float64(i),
			Timestamp: base + int64(i)*30_000,
		})
	}
	books.books["token-up"] = askBook("token-up", 0.60, 100)
	books.books["token-down"] = askBook("token-down", 0.42, 100)

	markets := &fakeMarketInfo{market: testMarket()}
	c := &CycleController{
		cfg:      cfg,
		markets:  markets,
		prices:   &fakePriceFeed{prices},
		books:    &fakeBookFeed{books},
		executor: NewOrderExecutor(gw, cfg.Executor),
		account:  "0xfund",
	}
	return c, markets, prices
}

// 纸交易同样消耗入场额度：找满 MaxBuysPerCycle 次机会后立即收手，
// 既不下真实订单，也不会在策略窗口内空转刷持仓接口
func TestTradeLoopDryRunConsumesBuySlots(t *testing.T) {
	cfg := config.Default()
	cfg.DryRun = true
	cfg.Executor = testExecutorConfig()
	gw := &fakeGateway{}
	c, markets, prices := newLoopController(cfg, gw)

	start := time.Now()
	held := c.tradeLoop(context.Background(), testMarket(), testCycle(4*time.Minute), testLogEntry())

	if held != nil {
		t.Fatalf("纸交易不应产生持仓: %+v", held)
	}
	if gw.posts != 0 {
		t.Fatalf("纸交易不应下真实订单: %d", gw.posts)
	}
	// 每次入场各查一次持仓，额度用尽后再查一次即退出
	if want := cfg.Strategy.MaxBuysPerCycle + 1; markets.positionCalls != want {
		t.Fatalf("持仓查询次数应为 %d, 实际 %d", want, markets.positionCalls)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("额度用尽后应立即退出, 不应等到窗口结束")
	}
	if len(prices.handlers) > 1 {
		t.Fatalf("价格回调不应随迭代累积: %d", len(prices.handlers))
	}
}

// 完整一轮买入→盯盘→卖出：行情翻转后清仓，额度用尽退出
func TestTradeLoopBuyMonitorSell(t *testing.T) {
	cfg := config.Default()
	cfg.Strategy.MaxBuysPerCycle = 1
	cfg.Executor = testExecutorConfig()
	gw := &fakeGateway{fills: []fakeFill{{size: 16, price: 0.60}, {size: 16, price: 0.55}}}
	c, _, prices := newLoopController(cfg, gw)

	done := make(chan *domain.Position, 1)
	go func() {
		done <- c.tradeLoop(context.Background(), testMarket(), testCycle(4*time.Minute), testLogEntry())
	}()

	// 等买入完成、盯盘回调注册后推送崩盘行情
	time.Sleep(100 * time.Millisecond)
	base := time.Now().UnixMilli()
	for i := 0; i < 11; i++ {
		prices.Push("btc/usd", 100-8*float64(i)/10, base+int64(i)*1000)
	}

	select {
	case held := <-done:
		if held != nil {
			t.Fatalf("清仓后不应有持仓交给结算: %+v", held)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tradeLoop 未返回")
	}
	// 一买一卖
	if gw.posts != 2 {
		t.Fatalf("下单次数应为 2, 实际 %d", gw.posts)
	}
}

func TestCurrentPositionFillsOutcome(t *testing.T) {
	market := testMarket()
	c := &CycleController{
		markets: &fakeMarketInfo{
			market: market,
			position: &domain.Position{
				TokenID:     "token-down",
				SizeMatched: 12,
				AvgPrice:    0.4,
				Status:      domain.PositionStatusMatched,
			},
		},
		account: "0xfund",
	}

	pos, err := c.currentPosition(context.Background(), market)
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if pos == nil {
		t.Fatal("应返回持仓")
	}
	// data-api 不带方向，应按 token 反查补全
	if pos.Outcome != domain.OutcomeDown {
		t.Fatalf("方向补全错误: %s", pos.Outcome)
	}
}

func TestCurrentPositionNone(t *testing.T) {
	market := testMarket()
	c := &CycleController{markets: &fakeMarketInfo{market: market}, account: "0xfund"}

	pos, err := c.currentPosition(context.Background(), market)
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if pos != nil {
		t.Fatalf("无持仓时应返回 nil: %+v", pos)
	}
}
