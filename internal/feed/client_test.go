package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// startEchoServer 启动一个本地 WebSocket 服务并统计累计连接数
func startEchoServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var connCount atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCount.Add(1)
		defer conn.Close()
		// 只收不发，保持连接直到客户端关闭
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &connCount
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testOptions(url string) Options {
	opts := DefaultOptions()
	opts.URL = url
	opts.ReconnectDelay = 10 * time.Millisecond
	opts.MaxReconnect = 3
	return opts
}

func TestConnectIdempotent(t *testing.T) {
	srv, connCount := startEchoServer(t)
	c := NewClient(testOptions(wsURL(srv)), "test")

	if err := c.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Disconnect()

	if !c.IsConnected() {
		t.Fatal("应处于已连接状态")
	}
	// 重复 Connect 不应新建连接
	if err := c.Connect(); err != nil {
		t.Fatalf("重复连接失败: %v", err)
	}
	if n := connCount.Load(); n != 1 {
		t.Fatalf("连接数应为 1: %d", n)
	}
}

func TestNoReconnectAfterDisconnect(t *testing.T) {
	srv, connCount := startEchoServer(t)
	c := NewClient(testOptions(wsURL(srv)), "test")

	if err := c.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	c.Disconnect()

	if c.IsConnected() {
		t.Fatal("断开后不应仍处于连接状态")
	}
	// 手动断开会触发服务端看到连接关闭；等足够长的若干个重连窗口，
	// 不应出现新的连接
	time.Sleep(100 * time.Millisecond)
	if n := connCount.Load(); n != 1 {
		t.Fatalf("手动断开后不应重连: 连接数=%d", n)
	}
}

func TestDisconnectClearsSubscriptionsAndCache(t *testing.T) {
	srv, _ := startEchoServer(t)
	c := NewClient(testOptions(wsURL(srv)), "test")

	if err := c.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	if err := c.Subscribe([]Subscription{{Topic: TopicCryptoPrices, Type: "update", Filters: `{"symbol":"btc/usd"}`}}); err != nil {
		t.Fatalf("订阅失败: %v", err)
	}
	c.Cache().Insert("btc/usd", 1.0)

	c.Disconnect()

	if got := c.Cache().Len("btc/usd"); got != 0 {
		t.Fatalf("断开后缓存应清空: %d", got)
	}
	// 断开后再订阅应报错
	if err := c.Subscribe(nil); err == nil {
		t.Fatal("断开后订阅应失败")
	}
}

func TestSubscribeDeduplicates(t *testing.T) {
	srv, _ := startEchoServer(t)
	c := NewClient(testOptions(wsURL(srv)), "test")

	if err := c.Connect(); err != nil {
		t.Fatalf("连接失败: %v", err)
	}
	defer c.Disconnect()

	sub := Subscription{Topic: TopicCryptoPrices, Type: "update", Filters: `{"symbol":"btc/usd"}`}
	for i := 0; i < 3; i++ {
		if err := c.Subscribe([]Subscription{sub}); err != nil {
			t.Fatalf("订阅失败: %v", err)
		}
	}

	c.subsMu.RLock()
	n := len(c.subs)
	c.subsMu.RUnlock()
	if n != 1 {
		t.Fatalf("重复订阅应去重: %d", n)
	}
}
