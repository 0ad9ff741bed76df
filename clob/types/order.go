package types

// UserMarketOrder 市价单请求
type UserMarketOrder struct {
	// TokenID 条件代币资产 ID
	TokenID string

	// Amount 数量。BUY 为美元金额，SELL 为份额数量
	Amount float64

	// Price 限定价（为空时按盘口市价计算）
	Price *float64

	// Side 订单方向
	Side Side

	// OrderType 执行类型（仅 FOK / FAK）
	OrderType OrderType
}

// SignedOrderJSON 已签名订单的提交格式
type SignedOrderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// NewOrderRequest POST /order 请求体
type NewOrderRequest struct {
	Order     SignedOrderJSON `json:"order"`
	Owner     string          `json:"owner"`
	OrderType OrderType       `json:"orderType"`
	DeferExec bool            `json:"deferExec"`
}

// OrderResponse 提交订单响应
type OrderResponse struct {
	Success           bool     `json:"success"`
	ErrorMsg          string   `json:"errorMsg"`
	OrderID           string   `json:"orderID"`
	TransactionHashes []string `json:"transactionsHashes"`
	Status            string   `json:"status"`
	TakingAmount      string   `json:"takingAmount"`
	MakingAmount      string   `json:"makingAmount"`
}

// Filled 订单是否实际成交。API 对被 kill 的 FOK/FAK 订单也返回
// success=true，必须同时检查 errorMsg。
func (r *OrderResponse) Filled() bool {
	return r != nil && r.Success && r.ErrorMsg == ""
}

// OpenOrder 订单查询结果
type OpenOrder struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	Owner           string   `json:"owner"`
	MakerAddress    string   `json:"maker_address"`
	Market          string   `json:"market"`
	AssetID         string   `json:"asset_id"`
	Side            string   `json:"side"`
	OriginalSize    string   `json:"original_size"`
	SizeMatched     string   `json:"size_matched"`
	Price           string   `json:"price"`
	AssociateTrades []string `json:"associate_trades"`
	Outcome         string   `json:"outcome"`
	CreatedAt       int64    `json:"created_at"`
	Expiration      string   `json:"expiration"`
	OrderType       string   `json:"order_type"`
}

// BookLevelJSON 订单簿档位（CLOB REST 返回格式）
type BookLevelJSON struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBookSummary GET /book 响应
type OrderBookSummary struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []BookLevelJSON `json:"bids"`
	Asks      []BookLevelJSON `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// DataPosition data-api 持仓记录
type DataPosition struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"`
	ConditionID  string  `json:"conditionId"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avgPrice"`
	CurPrice     float64 `json:"curPrice"`
	Redeemable   bool    `json:"redeemable"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
}
