package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultStreamURL Polymarket 实时数据流地址
const DefaultStreamURL = "wss://ws-live-data.polymarket.com"

// 订阅主题
const (
	TopicCryptoPrices = "crypto_prices_chainlink"
	TopicClobMarket   = "clob_market"
	TypeAggOrderbook  = "agg_orderbook"
)

// Message 数据流消息信封
type Message struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// SubscriptionAction 订阅动作
type SubscriptionAction string

const (
	ActionSubscribe   SubscriptionAction = "subscribe"
	ActionUnsubscribe SubscriptionAction = "unsubscribe"
)

// Subscription 一条订阅配置。Filters 是 JSON 编码后的字符串（协议要求），
// 例如 {"symbol":"btc/usd"} 或原始资产 ID 数组。
type Subscription struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Filters string `json:"filters,omitempty"`
}

// SubscriptionRequest 订阅/退订请求
type SubscriptionRequest struct {
	Action        SubscriptionAction `json:"action"`
	Subscriptions []Subscription     `json:"subscriptions"`
}

// FlexFloat64 解析 JSON 数字或数字字符串（RTDS 两种都会出现）
type FlexFloat64 float64

func (f *FlexFloat64) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = 0
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err == nil {
		v, err := num.Float64()
		if err != nil {
			return err
		}
		*f = FlexFloat64(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = FlexFloat64(v)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into FlexFloat64", string(b))
}

func (f FlexFloat64) Float64() float64 { return float64(f) }

// cryptoPricePayload 参考价更新载荷
type cryptoPricePayload struct {
	Symbol    string      `json:"symbol"`
	Timestamp int64       `json:"timestamp"`
	Value     FlexFloat64 `json:"value"`
}

// bookLevelWire 订单簿档位（字符串编码）
type bookLevelWire struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// bookPayload 订单簿快照载荷。event_type 区分 book/price_change 等事件。
type bookPayload struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Bids      []bookLevelWire `json:"bids"`
	Asks      []bookLevelWire `json:"asks"`
	Timestamp FlexFloat64     `json:"timestamp"`
	Hash      string          `json:"hash"`
}
