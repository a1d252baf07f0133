package executor

import (
	"strings"

	"github.com/betbot/copybot/internal/domain"
)

// FailureKind 下单失败的分类
type FailureKind int

const (
	// FailureTransient 可重试（包括限流、FOK 未成交等）
	FailureTransient FailureKind = iota
	// FailureInsufficientFunds 余额或授权不足，立即终止本次执行
	FailureInsufficientFunds
)

// ClassifyOrderError 根据交易所返回的错误信息分类
func ClassifyOrderError(msg string) FailureKind {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "not enough balance") || strings.Contains(lower, "allowance") {
		return FailureInsufficientFunds
	}
	return FailureTransient
}

// failureMessage 取出一次失败提交的错误信息
func failureMessage(res *domain.OrderResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if res != nil && res.Error != "" {
		return res.Error
	}
	return "order rejected"
}
