package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/cyclebet/internal/domain"
)

// GammaMarket Gamma API 市场数据
type GammaMarket struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	ConditionID  string `json:"conditionId"`
	Slug         string `json:"slug"`
	ClobTokenIDs string `json:"clobTokenIds"` // JSON 编码的字符串数组
	Outcomes     string `json:"outcomes"`     // JSON 编码的字符串数组
	StartDate    string `json:"startDate"`
	EndDate      string `json:"endDate"`
	Closed       bool   `json:"closed"`
	Events       []struct {
		StartTime string `json:"startTime"`
	} `json:"events"`
}

// GetMarketBySlug 按 slug 获取市场。未找到时返回 (nil, nil)。
func (c *Client) GetMarketBySlug(ctx context.Context, slug string) (*domain.Market, error) {
	var markets []GammaMarket
	resp, err := execGet(ctx, c.gamma, EndpointGammaMarkets, map[string]string{
		"slug": slug,
	}, nil, &markets)
	if err := checkResponse(resp, err, "获取市场失败"); err != nil {
		return nil, err
	}
	if len(markets) == 0 {
		return nil, nil
	}
	return markets[0].ToDomain()
}

// ToDomain 转换为内部市场模型
func (gm *GammaMarket) ToDomain() (*domain.Market, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokenIDs); err != nil {
		return nil, errors.Wrapf(err, "解析 clobTokenIds 失败: %s", gm.ClobTokenIDs)
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return nil, errors.Wrapf(err, "解析 outcomes 失败: %s", gm.Outcomes)
	}
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return nil, errors.Errorf("二元市场必须恰好两个结果: tokens=%d outcomes=%d", len(tokenIDs), len(outcomes))
	}

	m := &domain.Market{
		ConditionID:  gm.ConditionID,
		Slug:         gm.Slug,
		ClobTokenIDs: [2]string{tokenIDs[0], tokenIDs[1]},
		Outcomes:     [2]string{outcomes[0], outcomes[1]},
	}
	if gm.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			m.EndDate = t
		}
	}
	startRaw := gm.StartDate
	if len(gm.Events) > 0 && gm.Events[0].StartTime != "" {
		startRaw = gm.Events[0].StartTime
	}
	if startRaw != "" {
		if t, err := time.Parse(time.RFC3339, startRaw); err == nil {
			m.EventStartTime = t
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// CryptoPriceResult 周期开盘/收盘价查询结果
type CryptoPriceResult struct {
	OpenPrice  *float64 `json:"openPrice"`
	ClosePrice *float64 `json:"closePrice"`
	Timestamp  int64    `json:"timestamp"`
	Completed  bool     `json:"completed"`
}

// GetCycleOpenPrice 查询某个 15 分钟周期的开盘价（即本周期的参考价）
func (c *Client) GetCycleOpenPrice(ctx context.Context, symbol string, intervalStart int64) (float64, error) {
	startStr := time.Unix(intervalStart, 0).UTC().Format(time.RFC3339)
	endStr := time.Unix(intervalStart+int64(domain.CycleDuration.Seconds()), 0).UTC().Format(time.RFC3339)

	var result CryptoPriceResult
	resp, err := execGet(ctx, c.site, EndpointCryptoPrice, map[string]string{
		"symbol":         symbol,
		"eventStartTime": startStr,
		"variant":        "fifteen",
		"endDate":        endStr,
	}, nil, &result)
	if err := checkResponse(resp, err, "获取周期开盘价失败"); err != nil {
		return 0, err
	}
	if result.OpenPrice == nil || *result.OpenPrice <= 0 {
		return 0, errors.New("开盘价尚未就绪")
	}
	return *result.OpenPrice, nil
}

// GetCycleClosePrice 查询某个已结束周期的收盘价（结算核对用）
func (c *Client) GetCycleClosePrice(ctx context.Context, symbol string, intervalStart int64) (float64, error) {
	startStr := time.Unix(intervalStart, 0).UTC().Format(time.RFC3339)
	endStr := time.Unix(intervalStart+int64(domain.CycleDuration.Seconds()), 0).UTC().Format(time.RFC3339)

	var result CryptoPriceResult
	resp, err := execGet(ctx, c.site, EndpointCryptoPrice, map[string]string{
		"symbol":         symbol,
		"eventStartTime": startStr,
		"variant":        "fifteen",
		"endDate":        endStr,
	}, nil, &result)
	if err := checkResponse(resp, err, "获取周期收盘价失败"); err != nil {
		return 0, err
	}
	if !result.Completed || result.ClosePrice == nil {
		return 0, errors.New("周期尚未完成结算")
	}
	return *result.ClosePrice, nil
}
