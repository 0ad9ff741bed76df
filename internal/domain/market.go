package domain

import (
	"fmt"
	"time"
)

// Outcome 二元市场方向
type Outcome string

const (
	OutcomeUp   Outcome = "Up"
	OutcomeDown Outcome = "Down"
	OutcomeNone Outcome = ""
)

// Opposite 返回对侧方向
func (o Outcome) Opposite() Outcome {
	switch o {
	case OutcomeUp:
		return OutcomeDown
	case OutcomeDown:
		return OutcomeUp
	}
	return OutcomeNone
}

// Market 市场领域模型（btc-updown-15m-* 二元市场）。
// 不变式：ClobTokenIDs[i] 对应 Outcomes[i]，两个结果互斥且完备。
type Market struct {
	ConditionID    string    // 条件 ID
	Slug           string    // 市场 slug
	ClobTokenIDs   [2]string // UP/DOWN token 资产 ID
	Outcomes       [2]string // 结果标签（"Up","Down"）
	EventStartTime time.Time // 周期起始时间
	EndDate        time.Time // 周期结束时间
	PriceToBeat    float64   // 目标价（如元数据提供；0 表示未知）
}

// Validate 做系统级硬校验：进入交易系统的 market 必须具备完整隔离键与资产信息
func (m *Market) Validate() error {
	if m == nil {
		return fmt.Errorf("market 为 nil")
	}
	if m.Slug == "" {
		return fmt.Errorf("market slug 为空")
	}
	if m.ConditionID == "" {
		return fmt.Errorf("market ConditionID 为空: slug=%s", m.Slug)
	}
	if m.ClobTokenIDs[0] == "" || m.ClobTokenIDs[1] == "" {
		return fmt.Errorf("market tokenIDs 缺失: slug=%s", m.Slug)
	}
	return nil
}

// TokenID 根据方向获取资产 ID
func (m *Market) TokenID(o Outcome) string {
	if o == OutcomeDown {
		return m.ClobTokenIDs[1]
	}
	return m.ClobTokenIDs[0]
}

// OutcomeForToken 根据资产 ID 反查方向
func (m *Market) OutcomeForToken(tokenID string) Outcome {
	switch tokenID {
	case m.ClobTokenIDs[0]:
		return OutcomeUp
	case m.ClobTokenIDs[1]:
		return OutcomeDown
	}
	return OutcomeNone
}

// CycleDuration 一个交易周期的长度
const CycleDuration = 15 * time.Minute

// Cycle 一个 15 分钟交易周期。建立后 PriceToBeat 与截止时间只读。
type Cycle struct {
	IntervalStart int64   // 周期起始 Unix 秒（对齐到 15 分钟边界）
	MarketSlug    string  // 周期对应的市场 slug
	PriceToBeat   float64 // 本周期目标价（周期开盘参考价）
}

// Deadline 周期截止时间 = 起始 + 15 分钟
func (c Cycle) Deadline() time.Time {
	return time.Unix(c.IntervalStart, 0).Add(CycleDuration)
}

// Remaining 距离周期截止的剩余时间
func (c Cycle) Remaining(now time.Time) time.Duration {
	return c.Deadline().Sub(now)
}

// CurrentCycleStart 当前 15 分钟周期的起始时间戳（秒）
func CurrentCycleStart(now time.Time) int64 {
	return now.UTC().Truncate(CycleDuration).Unix()
}

// CycleSlug 生成 15 分钟周期市场 slug，例如 btc-updown-15m-1765985400
func CycleSlug(intervalStart int64) string {
	return fmt.Sprintf("btc-updown-15m-%d", intervalStart)
}
