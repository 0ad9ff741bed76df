package client

import (
	"context"

	"github.com/pkg/errors"

	"github.com/betbot/cyclebet/clob/signing"
	"github.com/betbot/cyclebet/clob/types"
)

// CreateOrDeriveApiKey 获取 L2 API 密钥：先尝试派生已有密钥，
// 不存在时创建新的。成功后写回客户端认证配置。
func (c *Client) CreateOrDeriveApiKey(ctx context.Context) (*types.ApiKeyCreds, error) {
	if c.auth == nil || c.auth.PrivateKey == nil {
		return nil, errors.New("未配置私钥")
	}

	creds, err := c.deriveApiKey(ctx)
	if err != nil {
		creds, err = c.createApiKey(ctx)
		if err != nil {
			return nil, err
		}
	}
	c.auth.Creds = creds
	return creds, nil
}

func (c *Client) deriveApiKey(ctx context.Context) (*types.ApiKeyCreds, error) {
	headers, err := signing.CreateL1Headers(c.auth.PrivateKey, c.auth.ChainID, nil, nil)
	if err != nil {
		return nil, err
	}

	var raw types.ApiKeyRaw
	resp, err := execGet(ctx, c.clob, EndpointDeriveAPIKey, nil, headers.ToMap(), &raw)
	if err := checkResponse(resp, err, "派生 API 密钥失败"); err != nil {
		return nil, err
	}
	return rawToCreds(&raw)
}

func (c *Client) createApiKey(ctx context.Context) (*types.ApiKeyCreds, error) {
	headers, err := signing.CreateL1Headers(c.auth.PrivateKey, c.auth.ChainID, nil, nil)
	if err != nil {
		return nil, err
	}

	var raw types.ApiKeyRaw
	resp, err := c.clob.R().
		SetContext(ctx).
		SetHeaders(headers.ToMap()).
		SetResult(&raw).
		Post(EndpointCreateAPIKey)
	if err := checkResponse(resp, err, "创建 API 密钥失败"); err != nil {
		return nil, err
	}
	return rawToCreds(&raw)
}

func rawToCreds(raw *types.ApiKeyRaw) (*types.ApiKeyCreds, error) {
	if raw.ApiKey == "" || raw.Secret == "" {
		return nil, errors.New("API 返回的密钥为空")
	}
	return &types.ApiKeyCreds{
		Key:        raw.ApiKey,
		Secret:     raw.Secret,
		Passphrase: raw.Passphrase,
	}, nil
}
