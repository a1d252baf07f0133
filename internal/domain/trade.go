package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side 交易方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ActivityType 上游活动类型（只有 TRADE / MERGE 会进入执行器）
type ActivityType string

const (
	ActivityTrade  ActivityType = "TRADE"
	ActivityMerge  ActivityType = "MERGE"
	ActivityRedeem ActivityType = "REDEEM"
)

// TradeRecord 监控器落库的交易员活动记录
// 执行器只回写 Executed / RetryCount / MyBoughtSize / Outcome / Claimed 这几个字段
type TradeRecord struct {
	ID              string          `json:"id"`
	Trader          string          `json:"trader"` // 被跟单的钱包地址
	Type            ActivityType    `json:"type"`
	TransactionHash string          `json:"transactionHash,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	ConditionID     string          `json:"conditionId"`
	Asset           string          `json:"asset"` // token id
	Side            Side            `json:"side"`
	Size            decimal.Decimal `json:"size"`     // token 数量
	USDCSize        decimal.Decimal `json:"usdcSize"` // USDC 金额
	Price           decimal.Decimal `json:"price"`
	Slug            string          `json:"slug,omitempty"`
	EventSlug       string          `json:"eventSlug,omitempty"`
	Outcome         string          `json:"outcome,omitempty"` // 市场结果名称（Yes/No/Up/Down）

	// 以下为执行器回写字段
	Claimed      bool            `json:"claimed"`
	Executed     bool            `json:"executed"`
	RetryCount   int             `json:"retryCount"`
	MyBoughtSize decimal.Decimal `json:"myBoughtSize"` // 仓位账本：本条买入实际买到且尚未卖出的 token 数
	Result       ExecutionState  `json:"result,omitempty"`
}

// IsTerminal 记录是否已经走完执行流程（或者已被某次执行认领）
func (t *TradeRecord) IsTerminal() bool {
	return t.Executed || t.Claimed
}

// Label 日志里用的市场名
func (t *TradeRecord) Label() string {
	if t.Slug != "" {
		return t.Slug
	}
	return t.Asset
}

// Condition 执行条件
type Condition string

const (
	ConditionBuy   Condition = "buy"
	ConditionSell  Condition = "sell"
	ConditionMerge Condition = "merge"
)

// ConditionOf 根据活动类型和方向决定执行条件
func ConditionOf(t *TradeRecord) Condition {
	if t.Type == ActivityMerge {
		return ConditionMerge
	}
	if t.Side == SideBuy {
		return ConditionBuy
	}
	return ConditionSell
}
