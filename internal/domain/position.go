package domain

import "github.com/shopspring/decimal"

// Position data-api 返回的持仓（按 conditionId 匹配）
type Position struct {
	Asset        string          `json:"asset"`
	ConditionID  string          `json:"conditionId"`
	Size         decimal.Decimal `json:"size"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	CurrentValue decimal.Decimal `json:"currentValue"`
	CurPrice     decimal.Decimal `json:"curPrice"`
	Title        string          `json:"title,omitempty"`
	Slug         string          `json:"slug,omitempty"`
	Outcome      string          `json:"outcome,omitempty"`
}

// CostValue 持仓成本（size × avgPrice），用于仓位上限判断
func (p *Position) CostValue() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Size.Mul(p.AvgPrice)
}

// LedgerEntry 仓位账本中的一条买入记录
type LedgerEntry struct {
	TradeID      string
	MyBoughtSize decimal.Decimal
}
