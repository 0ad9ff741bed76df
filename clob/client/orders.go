package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/betbot/cyclebet/clob/signing"
	"github.com/betbot/cyclebet/clob/types"
	"github.com/betbot/cyclebet/internal/domain"
)

// PostMarketOrder 构建、签名并提交一张市价单，返回订单响应。
// HMAC 签名对请求体逐字节敏感，序列化后的 JSON 必须原样发送。
func (c *Client) PostMarketOrder(ctx context.Context, order *types.UserMarketOrder, tickSize types.TickSize, negRisk bool) (*types.OrderResponse, error) {
	if err := c.canL2Auth(); err != nil {
		return nil, err
	}
	if order.OrderType == "" {
		order.OrderType = types.OrderTypeFAK
	}

	signed, err := c.BuildMarketOrder(order, tickSize, negRisk)
	if err != nil {
		return nil, err
	}
	payload := ToWire(signed, c.auth.Creds.Key, order.OrderType)

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "序列化订单失败")
	}
	bodyStr := string(bodyBytes)

	headers, err := signing.CreateL2Headers(c.auth.PrivateKey, c.auth.Creds, &types.L2HeaderArgs{
		Method:      http.MethodPost,
		RequestPath: EndpointPostOrder,
		Body:        &bodyStr,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "创建 L2 认证头失败")
	}

	var orderResp types.OrderResponse
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers.ToMap()).
		SetHeader("Content-Type", "application/json").
		SetBody(bodyBytes).
		SetResult(&orderResp).
		Post(EndpointPostOrder)
	if err := checkResponse(resp, err, "提交订单失败"); err != nil {
		return nil, err
	}
	return &orderResp, nil
}

// GetOrder 查询订单状态
func (c *Client) GetOrder(ctx context.Context, orderID string) (*types.OpenOrder, error) {
	if err := c.canL2Auth(); err != nil {
		return nil, err
	}
	path := EndpointGetOrder + orderID

	headers, err := signing.CreateL2Headers(c.auth.PrivateKey, c.auth.Creds, &types.L2HeaderArgs{
		Method:      http.MethodGet,
		RequestPath: path,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "创建 L2 认证头失败")
	}

	var order types.OpenOrder
	resp, err := execGet(ctx, c.clob, path, nil, headers.ToMap(), &order)
	if err := checkResponse(resp, err, "查询订单失败"); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderBookSummary 获取 token 的订单簿快照（数据流缓存之外的兜底）
func (c *Client) GetOrderBookSummary(ctx context.Context, tokenID string) (*domain.BookSnapshot, error) {
	var summary types.OrderBookSummary
	resp, err := execGet(ctx, c.clob, EndpointGetOrderBook, map[string]string{
		"token_id": tokenID,
	}, nil, &summary)
	if err := checkResponse(resp, err, "获取订单簿失败"); err != nil {
		return nil, err
	}

	book := &domain.BookSnapshot{
		AssetID: summary.AssetID,
		Market:  summary.Market,
		Bids:    wireLevels(summary.Bids, false),
		Asks:    wireLevels(summary.Asks, true),
		Hash:    summary.Hash,
	}
	if ts, err := strconv.ParseInt(summary.Timestamp, 10, 64); err == nil {
		book.Timestamp = ts
	}
	return book, nil
}

// wireLevels 转为最优档在末尾的档位序列（bids 升序、asks 降序）
func wireLevels(in []types.BookLevelJSON, desc bool) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(in))
	for _, lv := range in {
		price, err := strconv.ParseFloat(lv.Price, 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(lv.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, domain.BookLevel{Price: price, Size: size})
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
