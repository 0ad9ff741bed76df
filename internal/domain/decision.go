package domain

// Decision 下注筛选结果。字段全部显式声明，下游不得依赖未声明字段。
type Decision struct {
	Side               Outcome // 选中方向（OutcomeNone 表示不下注）
	WinProbability     float64 // 模型估计的获胜概率
	ImpliedProbability float64 // 市场隐含概率（best ask）
	Edge               float64 // WinProbability - ImpliedProbability
	FlipRisk           float64 // 1 - WinProbability
	Score              float64 // Edge - riskAversion*FlipRisk
	ShouldBet          bool    // 是否通过筛选
}

// ExitAction 持仓再评估结论
type ExitAction string

const (
	ExitActionHold ExitAction = "hold" // 继续持有
	ExitActionSell ExitAction = "sell" // 立即卖出
)
