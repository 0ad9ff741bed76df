package client

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	orderbuilder "github.com/polymarket/go-order-utils/pkg/builder"
	ordermodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/betbot/cyclebet/clob/types"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// CollateralTokenDecimals USDC 精度
const CollateralTokenDecimals = 6

// RoundConfig 各字段的小数位数
type RoundConfig struct {
	Price  int
	Size   int
	Amount int
}

// RoundingConfig tick size 对应的舍入配置
var RoundingConfig = map[types.TickSize]RoundConfig{
	types.TickSize01:    {Price: 1, Size: 2, Amount: 3},
	types.TickSize001:   {Price: 2, Size: 2, Amount: 4},
	types.TickSize0001:  {Price: 3, Size: 2, Amount: 5},
	types.TickSize00001: {Price: 4, Size: 2, Amount: 6},
}

// BuildMarketOrder 构建并签名一张市价单。BUY 的 Amount 是美元金额，
// SELL 的 Amount 是份额数量；价格取调用方给出的盘口价。
func (c *Client) BuildMarketOrder(order *types.UserMarketOrder, tickSize types.TickSize, negRisk bool) (*ordermodel.SignedOrder, error) {
	if c.auth == nil || c.auth.PrivateKey == nil {
		return nil, errors.New("未配置私钥，无法签名订单")
	}
	if order.Price == nil || *order.Price <= 0 || *order.Price >= 1 {
		return nil, errors.Errorf("非法订单价格: %v", order.Price)
	}
	rc, ok := RoundingConfig[tickSize]
	if !ok {
		return nil, errors.Errorf("不支持的 tick size: %s", tickSize)
	}

	price := roundNormal(*order.Price, rc.Price)

	// BUY: maker=USDC taker=份额；SELL: maker=份额 taker=USDC
	var rawMakerAmt, rawTakerAmt float64
	if order.Side == types.SideBuy {
		rawMakerAmt = roundDown(order.Amount, rc.Amount)
		rawTakerAmt = rawMakerAmt / price
		if decimalPlaces(rawTakerAmt) > rc.Size {
			rawTakerAmt = roundDown(rawTakerAmt, rc.Size)
		}
	} else {
		rawMakerAmt = roundDown(order.Amount, rc.Size)
		rawTakerAmt = rawMakerAmt * price
		if decimalPlaces(rawTakerAmt) > rc.Amount {
			rawTakerAmt = roundDown(rawTakerAmt, rc.Amount)
		}
	}
	if rawMakerAmt <= 0 || rawTakerAmt <= 0 {
		return nil, errors.Errorf("订单金额过小: maker=%v taker=%v", rawMakerAmt, rawTakerAmt)
	}

	signerAddr := signerAddress(c.auth)
	maker := signerAddr
	if c.auth.FunderAddress != "" {
		maker = c.auth.FunderAddress
	}

	side := ordermodel.BUY
	if order.Side == types.SideSell {
		side = ordermodel.SELL
	}
	contract := ordermodel.CTFExchange
	if negRisk {
		contract = ordermodel.NegRiskCTFExchange
	}

	data := &ordermodel.OrderData{
		Maker:         maker,
		Taker:         zeroAddress,
		TokenId:       order.TokenID,
		MakerAmount:   parseUnits(rawMakerAmt, CollateralTokenDecimals).String(),
		TakerAmount:   parseUnits(rawTakerAmt, CollateralTokenDecimals).String(),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        signerAddr,
		Expiration:    "0",
		Side:          side,
		SignatureType: ordermodel.SignatureType(signatureType(c.auth)),
	}

	builder := orderbuilder.NewExchangeOrderBuilderImpl(big.NewInt(int64(c.ChainID())), saltGenerator)
	signed, err := builder.BuildSignedOrder(c.auth.PrivateKey, data, contract)
	if err != nil {
		return nil, errors.Wrap(err, "签名订单失败")
	}
	return signed, nil
}

// ToWire 转换为提交格式
func ToWire(order *ordermodel.SignedOrder, owner string, orderType types.OrderType) *types.NewOrderRequest {
	side := types.SideBuy
	if order.Side != nil && order.Side.Int64() == int64(ordermodel.SELL) {
		side = types.SideSell
	}
	return &types.NewOrderRequest{
		Order: types.SignedOrderJSON{
			Salt:          order.Salt.Int64(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenId.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			Side:          side,
			SignatureType: int(order.SignatureType.Int64()),
			Signature:     "0x" + fmt.Sprintf("%x", order.Signature),
		},
		Owner:     owner,
		OrderType: orderType,
	}
}

func saltGenerator() int64 {
	return time.Now().UnixNano()
}

func signerAddress(auth *AuthConfig) string {
	return crypto.PubkeyToAddress(auth.PrivateKey.PublicKey).Hex()
}

// signatureType 资金钱包与签名者不同（代理钱包）时用 Gnosis Safe 签名
func signatureType(auth *AuthConfig) types.SignatureType {
	if auth.FunderAddress != "" && !strings.EqualFold(auth.FunderAddress, signerAddress(auth)) {
		return types.SignatureTypeGnosisSafe
	}
	return types.SignatureTypeEOA
}

// decimalPlaces 返回小数位数
func decimalPlaces(num float64) int {
	if num == math.Trunc(num) {
		return 0
	}
	str := strconv.FormatFloat(num, 'f', -1, 64)
	parts := strings.Split(str, ".")
	if len(parts) < 2 {
		return 0
	}
	return len(parts[1])
}

func roundNormal(num float64, decimals int) float64 {
	if decimalPlaces(num) <= decimals {
		return num
	}
	m := math.Pow(10, float64(decimals))
	return math.Round(num*m) / m
}

func roundDown(num float64, decimals int) float64 {
	if decimalPlaces(num) <= decimals {
		return num
	}
	m := math.Pow(10, float64(decimals))
	return math.Floor(num*m) / m
}

// parseUnits 金额转为最小单位整数
func parseUnits(value float64, decimals int) *big.Int {
	m := new(big.Float).SetFloat64(math.Pow(10, float64(decimals)))
	v := new(big.Float).SetFloat64(value)
	out, _ := new(big.Float).Mul(v, m).Int(nil)
	return out
}
