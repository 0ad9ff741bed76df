package client

import (
	"context"

	"github.com/betbot/cyclebet/clob/types"
	"github.com/betbot/cyclebet/internal/domain"
)

// GetOpenPosition 查询某市场的持仓（data-api）。没有持仓时返回 (nil, nil)。
func (c *Client) GetOpenPosition(ctx context.Context, conditionID, account string) (*domain.Position, error) {
	var positions []types.DataPosition
	resp, err := execGet(ctx, c.data, EndpointDataPositions, map[string]string{
		"user":   account,
		"market": conditionID,
	}, nil, &positions)
	if err := checkResponse(resp, err, "查询持仓失败"); err != nil {
		return nil, err
	}

	for _, p := range positions {
		if p.Size <= 0 {
			continue
		}
		return &domain.Position{
			TokenID:     p.Asset,
			Outcome:     domain.Outcome(p.Outcome),
			SizeMatched: p.Size,
			AvgPrice:    p.AvgPrice,
			Status:      domain.PositionStatusMatched,
		}, nil
	}
	return nil, nil
}

// GetRedeemablePositions 查询账户所有可赎回的持仓
func (c *Client) GetRedeemablePositions(ctx context.Context, account string) ([]types.DataPosition, error) {
	var positions []types.DataPosition
	resp, err := execGet(ctx, c.data, EndpointDataPositions, map[string]string{
		"user":       account,
		"redeemable": "true",
	}, nil, &positions)
	if err := checkResponse(resp, err, "查询可赎回持仓失败"); err != nil {
		return nil, err
	}
	return positions, nil
}
