// Package settlement 通过 Polymarket Relayer 免 gas 赎回已结算仓位。
// 交易经 Safe 代理钱包执行：对 SafeTx 做 EIP-712 签名后提交给 relayer。
package settlement

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	clobclient "github.com/betbot/cyclebet/clob/client"
	"github.com/betbot/cyclebet/clob/signing"
	"github.com/betbot/cyclebet/clob/types"
)

const (
	DefaultRelayerURL = "https://relayer-v2.polymarket.com"

	// Polygon 合约地址
	ConditionalTokensAddr = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"
	USDCAddr              = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"

	// 单次结算最多赎回的仓位数
	maxRedeemsPerRun = 20
	// 连续提交之间的间隔
	redeemDelay = 2 * time.Second
)

// redeemPositionsABI ConditionalTokens.redeemPositions
var redeemPositionsABI = `[{
	"inputs": [
		{"internalType": "contract IERC20", "name": "collateralToken", "type": "address"},
		{"internalType": "bytes32", "name": "parentCollectionId", "type": "bytes32"},
		{"internalType": "bytes32", "name": "conditionId", "type": "bytes32"},
		{"internalType": "uint256[]", "name": "indexSets", "type": "uint256[]"}
	],
	"name": "redeemPositions",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// SafeTransaction 一笔经 Safe 执行的交易
type SafeTransaction struct {
	To        common.Address
	Operation uint8 // 0 = Call
	Data      []byte
	Value     *big.Int
}

// RelayerResponse relayer 提交结果
type RelayerResponse struct {
	ID              string `json:"id"`
	TransactionHash string `json:"transactionHash"`
	State           string `json:"state"`
	Error           string `json:"error,omitempty"`
}

// RedeemResult 一次批量赎回的结果
type RedeemResult struct {
	Attempted int     // 尝试赎回的仓位数
	Redeemed  int     // 成功提交的仓位数
	TotalUSDC float64 // 预计回收的 USDC（按获胜仓位面值估算）
}

// PositionReader 可赎回仓位查询
type PositionReader interface {
	GetRedeemablePositions(ctx context.Context, account string) ([]types.DataPosition, error)
}

// Redeemer 结算赎回服务
type Redeemer struct {
	http       *resty.Client
	chainID    int64
	privateKey *ecdsa.PrivateKey
	signerAddr common.Address
	safeAddr   common.Address
	creds      *types.ApiKeyCreds // builder 凭证
	positions  PositionReader
	log        *logrus.Entry
}

// NewRedeemer 创建赎回服务。funder 为空时 Safe 地址取签名者地址。
func NewRedeemer(relayerURL string, privateKey *ecdsa.PrivateKey, funder string, creds *types.ApiKeyCreds, positions PositionReader) *Redeemer {
	if relayerURL == "" {
		relayerURL = DefaultRelayerURL
	}
	signerAddr := crypto.PubkeyToAddress(privateKey.PublicKey)
	safeAddr := signerAddr
	if strings.TrimSpace(funder) != "" {
		safeAddr = common.HexToAddress(strings.TrimSpace(funder))
	}
	return &Redeemer{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(relayerURL, "/")).
			SetTimeout(30 * time.Second),
		chainID:    int64(types.ChainPolygon),
		privateKey: privateKey,
		signerAddr: signerAddr,
		safeAddr:   safeAddr,
		creds:      creds,
		positions:  positions,
		log:        logrus.WithField("component", "settlement"),
	}
}

// RedeemAll 批量赎回资金账户下所有已结算仓位。单个仓位失败只记录
// 日志并继续，不影响其余仓位。
func (r *Redeemer) RedeemAll(ctx context.Context, fundingAccount string) (*RedeemResult, error) {
	if fundingAccount == "" {
		fundingAccount = r.safeAddr.Hex()
	}

	positions, err := r.positions.GetRedeemablePositions(ctx, fundingAccount)
	if err != nil {
		return nil, errors.Wrap(err, "查询可赎回仓位失败")
	}
	if len(positions) == 0 {
		r.log.Infof("没有可赎回仓位: account=%s", fundingAccount)
		return &RedeemResult{}, nil
	}
	if len(positions) > maxRedeemsPerRun {
		positions = positions[:maxRedeemsPerRun]
	}

	result := &RedeemResult{Attempted: len(positions)}
	for i, pos := range positions {
		if i > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(redeemDelay):
			}
		}

		if err := r.redeemOne(ctx, pos); err != nil {
			r.log.Errorf("赎回失败: condition=%s outcome=%s err=%v", pos.ConditionID, pos.Outcome, err)
			// 额度用尽时提前终止，其余留给下个周期
			if strings.Contains(err.Error(), "quota exceeded") {
				break
			}
			continue
		}
		result.Redeemed++
		if pos.CurPrice > 0.5 {
			result.TotalUSDC += pos.Size
		}
		r.log.Infof("✅ 赎回已提交: %s - %s size=%.2f", pos.Title, pos.Outcome, pos.Size)
	}
	return result, nil
}

// redeemOne 赎回单个仓位
func (r *Redeemer) redeemOne(ctx context.Context, pos types.DataPosition) error {
	indexSet := big.NewInt(1)
	if pos.OutcomeIndex == 1 {
		indexSet = big.NewInt(2)
	}
	tx, err := BuildRedeemTransaction(common.HexToHash(pos.ConditionID), indexSet)
	if err != nil {
		return errors.Wrap(err, "构建赎回交易失败")
	}

	metadata := fmt.Sprintf("Redeem: %s - %s", pos.Title, pos.Outcome)
	if len(metadata) > 500 {
		metadata = metadata[:497] + "..."
	}
	_, err = r.Execute(ctx, tx, metadata)
	return err
}

// BuildRedeemTransaction 构建 redeemPositions 调用数据
func BuildRedeemTransaction(conditionID common.Hash, indexSet *big.Int) (SafeTransaction, error) {
	ctfABI, err := abi.JSON(strings.NewReader(redeemPositionsABI))
	if err != nil {
		return SafeTransaction{}, err
	}
	data, err := ctfABI.Pack(
		"redeemPositions",
		common.HexToAddress(USDCAddr),
		common.Hash{}, // parentCollectionId = 0x0
		conditionID,
		[]*big.Int{indexSet},
	)
	if err != nil {
		return SafeTransaction{}, err
	}
	return SafeTransaction{
		To:        common.HexToAddress(ConditionalTokensAddr),
		Operation: 0,
		Data:      data,
		Value:     big.NewInt(0),
	}, nil
}

// Execute 签名并提交一笔 Safe 交易
func (r *Redeemer) Execute(ctx context.Context, tx SafeTransaction, metadata string) (*RelayerResponse, error) {
	nonceStr, err := r.getNonce(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "获取 nonce 失败")
	}
	nonce, ok := new(big.Int).SetString(nonceStr, 10)
	if !ok {
		return nil, errors.Errorf("非法 nonce: %s", nonceStr)
	}

	hash, err := r.safeTypedDataHash(tx.To, tx.Data, tx.Operation, nonce)
	if err != nil {
		return nil, errors.Wrap(err, "计算 SafeTx 哈希失败")
	}
	sig, err := crypto.Sign(hash, r.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "签名失败")
	}
	// Gnosis Safe 格式要求 v >= 27
	if sig[64] < 27 {
		sig[64] += 27
	}

	request := map[string]interface{}{
		"type":        "SAFE",
		"from":        r.signerAddr.Hex(),
		"to":          tx.To.Hex(),
		"proxyWallet": r.safeAddr.Hex(),
		"data":        "0x" + hex.EncodeToString(tx.Data),
		"nonce":       nonceStr,
		"signature":   "0x" + hex.EncodeToString(sig),
		"signatureParams": map[string]string{
			"gasPrice":   "0",
			"safeTxnGas": "0",
			"baseGas":    "0",
		},
		"metadata": metadata,
	}
	return r.submit(ctx, request)
}

// safeTypedDataHash 计算 SafeTx 的 EIP-712 哈希
func (r *Redeemer) safeTypedDataHash(to common.Address, data []byte, operation uint8, nonce *big.Int) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"SafeTx": {
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "data", Type: "bytes"},
				{Name: "operation", Type: "uint8"},
				{Name: "safeTxGas", Type: "uint256"},
				{Name: "baseGas", Type: "uint256"},
				{Name: "gasPrice", Type: "uint256"},
				{Name: "gasToken", Type: "address"},
				{Name: "refundReceiver", Type: "address"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "SafeTx",
		Domain: apitypes.TypedDataDomain{
			ChainId:           ethmath.NewHexOrDecimal256(r.chainID),
			VerifyingContract: r.safeAddr.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"to":             to.Hex(),
			"value":          "0",
			"data":           data,
			"operation":      fmt.Sprintf("%d", operation),
			"safeTxGas":      "0",
			"baseGas":        "0",
			"gasPrice":       "0",
			"gasToken":       "0x0000000000000000000000000000000000000000",
			"refundReceiver": "0x0000000000000000000000000000000000000000",
			"nonce":          nonce.String(),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}
	return hash, nil
}

// getNonce 查询签名者在 relayer 的 SAFE nonce
func (r *Redeemer) getNonce(ctx context.Context) (string, error) {
	path := "/nonce?address=" + r.signerAddr.Hex() + "&type=SAFE"

	var out struct {
		Nonce string `json:"nonce"`
	}
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeaders(r.builderHeaders("GET", path, nil)).
		SetResult(&out).
		Get(path)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", errors.Errorf("nonce 请求失败: %d %s", resp.StatusCode(), resp.String())
	}
	return out.Nonce, nil
}

// submit 提交交易到 relayer
func (r *Redeemer) submit(ctx context.Context, request interface{}) (*RelayerResponse, error) {
	body, err := jsonBody(request)
	if err != nil {
		return nil, err
	}

	var out RelayerResponse
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(r.builderHeaders("POST", "/submit", body)).
		SetBody(body).
		SetResult(&out).
		Post("/submit")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, errors.Errorf("提交失败: %d %s", resp.StatusCode(), resp.String())
	}
	if out.Error != "" {
		return nil, errors.Errorf("relayer 返回错误: %s", out.Error)
	}
	return &out, nil
}

// builderHeaders 构建 builder HMAC 认证头
func (r *Redeemer) builderHeaders(method, path string, body []byte) map[string]string {
	if r.creds == nil {
		return nil
	}
	ts := time.Now().Unix()
	var bodyStr *string
	if len(body) > 0 {
		s := string(body)
		bodyStr = &s
	}
	sig, err := signing.BuildPolyHmacSignature(r.creds.Secret, ts, method, path, bodyStr)
	if err != nil {
		r.log.Warnf("构建 builder 签名失败: %v", err)
		return nil
	}
	return map[string]string{
		"POLY_BUILDER_API_KEY":    r.creds.Key,
		"POLY_BUILDER_PASSPHRASE": r.creds.Passphrase,
		"POLY_BUILDER_SIGNATURE":  sig,
		"POLY_BUILDER_TIMESTAMP":  fmt.Sprintf("%d", ts),
	}
}

// jsonBody 序列化请求体。HMAC 签名与实际发送的字节必须一致，
// 所以这里统一先序列化再分别交给签名与 resty。
func jsonBody(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "序列化请求体失败")
	}
	return b, nil
}

var _ PositionReader = (*clobclient.Client)(nil)
