package client

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/cyclebet/clob/types"
)

// 默认服务地址
const (
	DefaultClobURL  = "https://clob.polymarket.com"
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultDataURL  = "https://data-api.polymarket.com"
	DefaultSiteURL  = "https://polymarket.com"
)

// AuthConfig 认证配置
type AuthConfig struct {
	PrivateKey *ecdsa.PrivateKey
	ChainID    types.Chain
	Creds      *types.ApiKeyCreds
	// FunderAddress 资金钱包（代理钱包）地址；为空时用签名者地址
	FunderAddress string
}

// Client CLOB 客户端。订单走 clob 主机，市场元数据走 gamma，
// 持仓查询走 data-api。resty 会从环境变量读取代理配置。
type Client struct {
	clob  *resty.Client
	gamma *resty.Client
	data  *resty.Client
	site  *resty.Client

	auth *AuthConfig
}

// Option 客户端可选配置
type Option func(*Client)

// WithGammaURL 覆盖 Gamma API 地址
func WithGammaURL(u string) Option {
	return func(c *Client) { c.gamma.SetBaseURL(strings.TrimSuffix(u, "/")) }
}

// WithDataURL 覆盖 data-api 地址
func WithDataURL(u string) Option {
	return func(c *Client) { c.data.SetBaseURL(strings.TrimSuffix(u, "/")) }
}

// NewClient 创建 CLOB 客户端
func NewClient(host string, auth *AuthConfig, opts ...Option) *Client {
	if host == "" {
		host = DefaultClobURL
	}
	c := &Client{
		clob:  newRestyClient(host),
		gamma: newRestyClient(DefaultGammaURL),
		data:  newRestyClient(DefaultDataURL),
		site:  newRestyClient(DefaultSiteURL),
		auth:  auth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newRestyClient(host string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(host, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流按 Retry-After 等待
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "cyclebet-clob")
}

// ChainID 返回链 ID
func (c *Client) ChainID() types.Chain {
	if c.auth == nil {
		return types.ChainPolygon
	}
	return c.auth.ChainID
}

// canL2Auth 是否具备 L2 认证条件
func (c *Client) canL2Auth() error {
	if c.auth == nil || c.auth.PrivateKey == nil {
		return errors.New("未配置私钥")
	}
	if c.auth.Creds == nil || c.auth.Creds.Key == "" {
		return errors.New("未配置 API 密钥")
	}
	return nil
}

// checkResponse 统一处理 HTTP 层错误
func checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	if resp.IsError() {
		return errors.Errorf("%s: HTTP %d: %s", op, resp.StatusCode(), resp.String())
	}
	return nil
}

// execGet 带 context 的 GET
func execGet(ctx context.Context, rc *resty.Client, path string, params map[string]string, headers map[string]string, out interface{}) (*resty.Response, error) {
	req := rc.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	if headers != nil {
		req.SetHeaders(headers)
	}
	if out != nil {
		req.SetResult(out)
	}
	return req.Get(path)
}
