package domain

import (
	"github.com/shopspring/decimal"
)

// OrderRequest 一次 FOK 提交
// BUY 时 Amount 是 USDC 金额，SELL 时 Amount 是 token 数量
type OrderRequest struct {
	Side        Side
	Asset       string
	ConditionID string
	Amount      decimal.Decimal
	Price       decimal.Decimal
}

// OrderResult 传输层返回的提交结果
type OrderResult struct {
	Success bool
	OrderID string
	Error   string
}

// ExecutionState 单次执行的状态机状态
type ExecutionState string

const (
	StatePending                  ExecutionState = "PENDING"
	StateFilling                  ExecutionState = "FILLING"
	StateCompleted                ExecutionState = "COMPLETED"
	StatePartialNoLiquidity       ExecutionState = "PARTIAL_NO_LIQUIDITY"
	StatePartialRetryExhausted    ExecutionState = "PARTIAL_RETRY_EXHAUSTED"
	StateAbortedInsufficientFunds ExecutionState = "ABORTED_INSUFFICIENT_FUNDS"
	StateSkippedBelowMinimum      ExecutionState = "SKIPPED_BELOW_MINIMUM"
	StateSkippedSlippage          ExecutionState = "SKIPPED_SLIPPAGE"
)

// IsFinal 是否终态
func (s ExecutionState) IsFinal() bool {
	switch s {
	case StateCompleted, StatePartialNoLiquidity, StatePartialRetryExhausted,
		StateAbortedInsufficientFunds, StateSkippedBelowMinimum, StateSkippedSlippage:
		return true
	default:
		return false
	}
}

// Outcome 终态回写到 TradeRecord 的字段集合
type Outcome struct {
	State      ExecutionState
	RetryCount int
	// BoughtSize 非 nil 时写入 MyBoughtSize（仅 BUY）
	BoughtSize *decimal.Decimal
}
