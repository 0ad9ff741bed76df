package domain

import "sort"

// PriceTick 参考价 tick（Chainlink 喂价）
type PriceTick struct {
	Value     float64 // 价格
	Timestamp int64   // Unix 毫秒
}

// SortTicksByTime 按时间戳升序返回副本（统计前必须排序，到达顺序不可靠）
func SortTicksByTime(ticks []PriceTick) []PriceTick {
	out := make([]PriceTick, len(ticks))
	copy(out, ticks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

// BookLevel 订单簿单档（价格、数量）
type BookLevel struct {
	Price float64
	Size  float64
}

// BookSnapshot 订单簿快照。Bids/Asks 沿用 RTDS 的档位顺序：从差到优，
// 最优档在各自列表的末尾（bids 价格升序、asks 价格降序）。
type BookSnapshot struct {
	AssetID   string
	Market    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp int64 // Unix 毫秒
	Hash      string
}

// BestAsk 返回最优卖价（列表最后一档）
func (s *BookSnapshot) BestAsk() (BookLevel, bool) {
	if s == nil || len(s.Asks) == 0 {
		return BookLevel{}, false
	}
	return s.Asks[len(s.Asks)-1], true
}

// BestBid 返回最优买价（列表最后一档）
func (s *BookSnapshot) BestBid() (BookLevel, bool) {
	if s == nil || len(s.Bids) == 0 {
		return BookLevel{}, false
	}
	return s.Bids[len(s.Bids)-1], true
}
