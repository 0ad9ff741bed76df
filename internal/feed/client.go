package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// State 连接状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Options 数据流客户端配置
type Options struct {
	URL            string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	ReconnectDelay time.Duration // 重连前固定等待
	MaxReconnect   int           // 最大重连次数，用尽后放弃并保持断开
	CacheSize      int           // 每个 key 的缓存上限
}

// DefaultOptions 返回默认配置
func DefaultOptions() Options {
	return Options{
		URL:            DefaultStreamURL,
		PingInterval:   5 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		ReconnectDelay: 5 * time.Second,
		MaxReconnect:   10,
		CacheSize:      2000,
	}
}

// Client 带重连的流式客户端基座。具体 feed（价格/订单簿）通过 handler
// 定义消息解析与分发；缓存与订阅列表由基座统一管理。
// handler 在读 goroutine 内按到达顺序串行调用。
type Client struct {
	opts Options
	log  *logrus.Entry

	conn   *websocket.Conn
	connMu sync.Mutex

	state   State
	stateMu sync.RWMutex

	// manual 置位后抑制一切自动重连，仅下一次 Connect 复位
	manual         bool
	reconnectCount int
	isReconnecting bool
	reconnectMu    sync.Mutex

	subs   []Subscription
	subsMu sync.RWMutex

	cache *Cache

	// handler 由具体 feed 设置，在消息解析成功后调用
	handler func(*Message)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient 创建流式客户端基座
func NewClient(opts Options, component string) *Client {
	if opts.URL == "" {
		opts.URL = DefaultStreamURL
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.MaxReconnect <= 0 {
		opts.MaxReconnect = 10
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 2000
	}
	return &Client{
		opts:  opts,
		log:   logrus.WithField("feed", component),
		state: StateDisconnected,
		cache: NewCache(opts.CacheSize),
	}
}

// Cache 返回底层缓存（只读访问用）
func (c *Client) Cache() *Cache { return c.cache }

// State 返回当前连接状态
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected 是否已连接
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	old := c.state
	c.state = s
	c.stateMu.Unlock()
	if old != s {
		c.log.Infof("连接状态: %s -> %s", old, s)
	}
}

// Connect 建立连接；已连接时幂等。调用会复位手动断开标志与重连计数。
func (c *Client) Connect() error {
	if c.IsConnected() {
		return nil
	}

	c.reconnectMu.Lock()
	c.manual = false
	c.reconnectCount = 0
	c.reconnectMu.Unlock()

	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c.dial()
}

// dial 建立一次 WebSocket 连接并启动读/心跳循环
func (c *Client) dial() error {
	c.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.Dial(c.opts.URL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("连接数据流失败: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setState(StateConnected)

	c.reconnectMu.Lock()
	c.reconnectCount = 0
	c.reconnectMu.Unlock()

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pingLoop(conn)

	// 连接（含重连）建立后重放所有活跃订阅
	c.resubscribe()
	return nil
}

// Disconnect 手动断开：抑制后续自动重连，清空缓存与订阅。重复调用安全。
func (c *Client) Disconnect() {
	c.reconnectMu.Lock()
	c.manual = true
	c.reconnectMu.Unlock()

	c.setState(StateDisconnected)

	if c.cancel != nil {
		c.cancel()
	}

	c.subsMu.Lock()
	c.subs = nil
	c.subsMu.Unlock()
	c.cache.Clear()

	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	// 等待 goroutine 退出，超时则放弃（不阻塞周期切换）
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		c.log.Warnf("等待读循环退出超时，继续断开")
	}
}

// Subscribe 发送订阅请求并登记到活跃订阅（重连后自动重放）
func (c *Client) Subscribe(subs []Subscription) error {
	if !c.IsConnected() {
		return errors.New("client is not connected")
	}
	req := SubscriptionRequest{Action: ActionSubscribe, Subscriptions: subs}
	if err := c.send(req); err != nil {
		return err
	}

	c.subsMu.Lock()
	for _, sub := range subs {
		exists := false
		for i, cur := range c.subs {
			if cur.Topic == sub.Topic && cur.Type == sub.Type && cur.Filters == sub.Filters {
				c.subs[i] = sub
				exists = true
				break
			}
		}
		if !exists {
			c.subs = append(c.subs, sub)
		}
	}
	c.subsMu.Unlock()
	return nil
}

func (c *Client) send(v interface{}) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return errors.New("connection is nil")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		return fmt.Errorf("发送失败: %w", err)
	}
	return nil
}

// resubscribe 重放活跃订阅（连接建立后调用）
func (c *Client) resubscribe() {
	c.subsMu.RLock()
	subs := make([]Subscription, len(c.subs))
	copy(subs, c.subs)
	c.subsMu.RUnlock()
	if len(subs) == 0 {
		return
	}

	// 等连接稳定再发
	time.Sleep(100 * time.Millisecond)
	req := SubscriptionRequest{Action: ActionSubscribe, Subscriptions: subs}
	if err := c.send(req); err != nil {
		c.log.Errorf("重连后重订阅失败: %v", err)
		return
	}
	c.log.Infof("已重订阅 %d 条", len(subs))
}

// readLoop 消息读取循环。消息按到达顺序串行分发。
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("readLoop panic recovered: %v", r)
			go c.handleDisconnect()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warnf("读取错误: %v", err)
			}
			c.handleDisconnect()
			return
		}

		trimmed := strings.TrimSpace(string(data))
		if trimmed == "" {
			continue
		}
		// 文本心跳（协议层的 "pong" / "PING" / "PONG" 不进业务）
		switch strings.ToLower(strings.Trim(trimmed, `"`)) {
		case "ping":
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			_ = conn.WriteMessage(websocket.TextMessage, []byte("PONG"))
			continue
		case "pong":
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			// 解析失败只丢消息，不影响连接
			c.log.Debugf("消息解析失败: %v (len=%d)", err, len(trimmed))
			continue
		}
		// 订阅确认等管理消息不进业务 handler
		if msg.Type == "subscribe" || msg.Type == "unsubscribe" {
			continue
		}
		c.dispatch(&msg)
	}
}

// dispatch 调用业务 handler；订阅方的 panic 不能破坏数据流
func (c *Client) dispatch(msg *Message) {
	h := c.handler
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("回调 panic recovered: topic=%s err=%v", msg.Topic, r)
		}
	}()
	h(msg)
}

// pingLoop 定期发送协议层 ping 保活
func (c *Client) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warnf("发送 ping 失败: %v", err)
				c.handleDisconnect()
				return
			}
		}
	}
}

// handleDisconnect 非手动断开时的重连逻辑：固定延迟、有界次数，用尽后静默放弃
func (c *Client) handleDisconnect() {
	c.reconnectMu.Lock()
	if c.manual || c.isReconnecting {
		c.reconnectMu.Unlock()
		return
	}
	if c.reconnectCount >= c.opts.MaxReconnect {
		c.reconnectMu.Unlock()
		c.setState(StateDisconnected)
		c.log.Warnf("重连次数用尽（%d），保持断开", c.opts.MaxReconnect)
		return
	}
	c.reconnectCount++
	c.isReconnecting = true
	attempt := c.reconnectCount
	c.reconnectMu.Unlock()

	c.setState(StateReconnecting)
	c.log.Infof("将在 %v 后重连 (%d/%d)...", c.opts.ReconnectDelay, attempt, c.opts.MaxReconnect)

	timer := time.NewTimer(c.opts.ReconnectDelay)
	defer timer.Stop()
	select {
	case <-c.ctx.Done():
		// Disconnect 在等待期间被调用
		c.reconnectMu.Lock()
		c.isReconnecting = false
		manual := c.manual
		c.reconnectMu.Unlock()
		if manual {
			return
		}
	case <-timer.C:
	}

	c.reconnectMu.Lock()
	if c.manual {
		c.isReconnecting = false
		c.reconnectMu.Unlock()
		return
	}
	c.reconnectMu.Unlock()

	err := c.dial()

	c.reconnectMu.Lock()
	c.isReconnecting = false
	c.reconnectMu.Unlock()

	if err != nil {
		c.log.Warnf("重连失败: %v (%d/%d)", err, attempt, c.opts.MaxReconnect)
		go c.handleDisconnect()
	}
}
