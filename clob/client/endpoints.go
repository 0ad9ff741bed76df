package client

// CLOB API 端点
const (
	EndpointTime = "/time"

	EndpointCreateAPIKey = "/auth/api-key"
	EndpointDeriveAPIKey = "/auth/derive-api-key"

	EndpointGetOrderBook = "/book"
	EndpointGetPrice     = "/price"

	EndpointPostOrder = "/order"
	EndpointGetOrder  = "/data/order/"

	// Gamma / data-api
	EndpointGammaMarkets  = "/markets"
	EndpointDataPositions = "/positions"

	// polymarket.com 站内 API（周期开盘价）
	EndpointCryptoPrice = "/api/crypto/crypto-price"
)
