// 行情观察 TUI：订阅 BTC 参考价与当前周期两侧订单簿，实时展示
// 模型给出的胜率与 edge。只看不下单，验证数据链路和模型用。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/cyclebet/clob/client"
	"github.com/betbot/cyclebet/internal/domain"
	"github.com/betbot/cyclebet/internal/feed"
	"github.com/betbot/cyclebet/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")) // 绿色

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")) // 红色

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// tickMsg 每秒刷新
type tickMsg time.Time

type watchModel struct {
	symbol string
	prices *feed.CryptoPriceFeed
	books  *feed.OrderBookFeed
	clob   *clobclient.Client

	market *domain.Market
	cycle  domain.Cycle

	err error
}

func (m watchModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(" cyclebet price-watcher · %s ", m.symbol)))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(downStyle.Render("错误: "+m.err.Error()) + "\n")
		return b.String()
	}

	ticks := m.prices.TickHistory(m.symbol)
	latest, ok := m.prices.LatestPrice(m.symbol)

	var lines []string
	if ok {
		delta := latest.Value - m.cycle.PriceToBeat
		style := upStyle
		if delta < 0 {
			style = downStyle
		}
		lines = append(lines, fmt.Sprintf("最新价: %s  (参考价 %.2f, %+.2f)",
			style.Render(fmt.Sprintf("%.2f", latest.Value)), m.cycle.PriceToBeat, delta))
	} else {
		lines = append(lines, dimStyle.Render("等待行情..."))
	}
	remaining := m.cycle.Remaining(time.Now())
	lines = append(lines, fmt.Sprintf("周期: %s  剩余 %s  ticks=%d",
		m.cycle.MarketSlug, remaining.Truncate(time.Second), len(ticks)))

	forecast := model.TerminalForecast(ticks, m.cycle.PriceToBeat, remaining)
	lines = append(lines, fmt.Sprintf("模型: P(up)=%s  P(down)=%s  σ=%.6f  样本=%d",
		upStyle.Render(fmt.Sprintf("%.4f", forecast.UpProbability)),
		downStyle.Render(fmt.Sprintf("%.4f", forecast.DownProbability)),
		forecast.Volatility, forecast.Samples))

	for _, side := range []domain.Outcome{domain.OutcomeUp, domain.OutcomeDown} {
		tokenID := m.market.TokenID(side)
		book, ok := m.books.LatestBook(tokenID)
		if !ok {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("%-4s 盘口未就绪", side)))
			continue
		}
		ask, hasAsk := book.BestAsk()
		bid, hasBid := book.BestBid()
		if !hasAsk || !hasBid {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("%-4s 盘口为空", side)))
			continue
		}
		edge := forecast.ProbabilityFor(side) - ask.Price
		lines = append(lines, fmt.Sprintf("%-4s bid %.3f×%.0f  ask %.3f×%.0f  edge=%+.4f",
			side, bid.Price, bid.Size, ask.Price, ask.Size, edge))
	}

	b.WriteString(borderStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n" + dimStyle.Render("q 退出"))
	return b.String()
}

func main() {
	symbol := flag.String("symbol", "btc/usd", "参考价 symbol")
	flag.Parse()

	_ = godotenv.Load()
	// TUI 模式下 logrus 会弄花屏幕，全部丢弃
	logrus.SetOutput(io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clob := clobclient.NewClient(clobclient.DefaultClobURL, nil)

	intervalStart := domain.CurrentCycleStart(time.Now())
	slug := domain.CycleSlug(intervalStart)
	market, err := clob.GetMarketBySlug(ctx, slug)
	if err != nil || market == nil {
		fmt.Fprintf(os.Stderr, "市场 %s 未就绪: %v\n", slug, err)
		os.Exit(1)
	}

	apiSymbol := strings.ToUpper(strings.SplitN(*symbol, "/", 2)[0])
	priceToBeat, err := clob.GetCycleOpenPrice(ctx, apiSymbol, intervalStart)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参考价未就绪: %v\n", err)
		os.Exit(1)
	}
	cycle := domain.Cycle{IntervalStart: intervalStart, MarketSlug: slug, PriceToBeat: priceToBeat}

	opts := feed.DefaultOptions()
	prices := feed.NewCryptoPriceFeed(opts)
	books := feed.NewOrderBookFeed(opts, clob)

	if err := prices.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, "连接价格流失败:", err)
		os.Exit(1)
	}
	defer prices.Disconnect()
	if err := prices.SubscribeSymbol(*symbol); err != nil {
		fmt.Fprintln(os.Stderr, "订阅价格失败:", err)
		os.Exit(1)
	}

	if err := books.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, "连接订单簿流失败:", err)
		os.Exit(1)
	}
	defer books.Disconnect()
	assets := make([]string, 0, 2)
	for _, id := range market.ClobTokenIDs {
		if id != "" {
			assets = append(assets, id)
		}
	}
	if err := books.SubscribeAssets(assets); err != nil {
		fmt.Fprintln(os.Stderr, "订阅订单簿失败:", err)
		os.Exit(1)
	}

	m := watchModel{
		symbol: strings.ToLower(*symbol),
		prices: prices,
		books:  books,
		clob:   clob,
		market: market,
		cycle:  cycle,
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "TUI 退出:", err)
		os.Exit(1)
	}
}
