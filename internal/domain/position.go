package domain

import "time"

// PositionStatus 仓位状态
type PositionStatus string

const (
	PositionStatusNone    PositionStatus = "none"    // 无持仓
	PositionStatusMatched PositionStatus = "matched" // 已成交持仓
)

// Position 仓位领域模型。每个周期最多一个开放仓位。
type Position struct {
	TokenID     string         // 持仓 token 资产 ID
	Outcome     Outcome        // 持仓方向
	SizeMatched float64        // 累计成交数量
	AvgPrice    float64        // 成交均价（成交量加权）
	Status      PositionStatus // 仓位状态
	EntryTime   time.Time      // 入场时间
}

// IsOpen 检查是否存在已成交持仓
func (p *Position) IsOpen() bool {
	return p != nil && p.Status == PositionStatusMatched && p.SizeMatched > 0
}

// OrderFill 一次订单执行的成交结果
type OrderFill struct {
	OrderID     string  // 订单 ID
	TokenID     string  // 资产 ID
	SizeMatched float64 // 本单成交数量
	AvgPrice    float64 // 本单成交均价
	// 跨多次拆单的累计值（由执行器回填）
	CumSize     float64 // 累计成交数量
	CumAvgPrice float64 // 累计成交量加权均价
}

// Matched 是否有实际成交
func (f *OrderFill) Matched() bool {
	return f != nil && f.SizeMatched > 0
}
