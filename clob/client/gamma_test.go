package client

import (
	"testing"

	"github.com/betbot/cyclebet/internal/domain"
)

func TestGammaMarketToDomain(t *testing.T) {
	gm := &GammaMarket{
		ConditionID:  "0xcondition",
		Slug:         "btc-updown-15m-1756600200",
		ClobTokenIDs: `["111","222"]`,
		Outcomes:     `["Up","Down"]`,
		StartDate:    "2026-08-31T00:30:00Z",
		EndDate:      "2026-08-31T00:45:00Z",
	}

	m, err := gm.ToDomain()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.ClobTokenIDs[0] != "111" || m.ClobTokenIDs[1] != "222" {
		t.Fatalf("token 顺序错误: %+v", m.ClobTokenIDs)
	}
	if m.TokenID(domain.OutcomeUp) != "111" || m.TokenID(domain.OutcomeDown) != "222" {
		t.Fatal("token 与方向映射错误")
	}
	if m.OutcomeForToken("222") != domain.OutcomeDown {
		t.Fatal("反查方向错误")
	}
	if m.EndDate.IsZero() || m.EventStartTime.IsZero() {
		t.Fatal("时间字段未解析")
	}
}

func TestGammaMarketToDomainRejectsMalformed(t *testing.T) {
	cases := []GammaMarket{
		{ConditionID: "0x1", Slug: "s", ClobTokenIDs: `["1"]`, Outcomes: `["Up","Down"]`},
		{ConditionID: "0x1", Slug: "s", ClobTokenIDs: `["1","2"]`, Outcomes: `["Up"]`},
		{ConditionID: "0x1", Slug: "s", ClobTokenIDs: `not json`, Outcomes: `["Up","Down"]`},
	}
	for i, gm := range cases {
		if _, err := gm.ToDomain(); err == nil {
			t.Fatalf("case %d: 应返回错误", i)
		}
	}
}
