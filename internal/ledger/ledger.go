// Package ledger 维护 "实际买到、尚未卖出" 的 token 账本（记录在每条 BUY 记录的 MyBoughtSize 上）
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

// FullLiquidation 卖出比例达到该值视为清仓
var FullLiquidation = decimal.RequireFromString("0.99")

// Store 账本需要的存储能力
type Store interface {
	TrackedBuys(ctx context.Context, trader, asset, conditionID string) ([]domain.LedgerEntry, error)
	UpdateBoughtSizes(ctx context.Context, sizes map[string]decimal.Decimal) error
}

// Holdings 某个交易员某个市场的已跟踪买入
type Holdings struct {
	Entries []domain.LedgerEntry
	Total   decimal.Decimal
}

// Empty 没有可跟踪的 token
func (h Holdings) Empty() bool { return !h.Total.IsPositive() }

// Ledger 仓位账本
type Ledger struct {
	store Store
}

// New 创建账本
func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Holdings 查询同一交易员、资产、市场下所有 MyBoughtSize > 0 的已执行买入
func (l *Ledger) Holdings(ctx context.Context, trader, asset, conditionID string) (Holdings, error) {
	entries, err := l.store.TrackedBuys(ctx, trader, asset, conditionID)
	if err != nil {
		return Holdings{}, fmt.Errorf("查询已跟踪买入失败: %w", err)
	}
	h := Holdings{Total: decimal.Zero}
	for _, e := range entries {
		if !e.MyBoughtSize.IsPositive() {
			continue
		}
		h.Entries = append(h.Entries, e)
		h.Total = h.Total.Add(e.MyBoughtSize)
	}
	return h, nil
}

// Reduction 一次卖出后账本的变化
type Reduction struct {
	SoldFraction decimal.Decimal
	Cleared      bool
	Sizes        map[string]decimal.Decimal
}

// PlanSell 计算卖出 sold 个 token 后每条记录的新值
// 卖出比例 >= 99% 时全部清零，否则每条按 (1 - 比例) 缩放
func PlanSell(h Holdings, sold decimal.Decimal) (Reduction, bool) {
	if !sold.IsPositive() || h.Empty() {
		return Reduction{}, false
	}
	fraction := sold.Div(h.Total)
	r := Reduction{
		SoldFraction: fraction,
		Cleared:      fraction.GreaterThanOrEqual(FullLiquidation),
		Sizes:        make(map[string]decimal.Decimal, len(h.Entries)),
	}
	keep := decimal.NewFromInt(1).Sub(fraction)
	for _, e := range h.Entries {
		if r.Cleared {
			r.Sizes[e.TradeID] = decimal.Zero
			continue
		}
		r.Sizes[e.TradeID] = e.MyBoughtSize.Mul(keep)
	}
	return r, true
}

// ApplySell 卖出后写回账本
func (l *Ledger) ApplySell(ctx context.Context, h Holdings, sold decimal.Decimal) (Reduction, error) {
	r, ok := PlanSell(h, sold)
	if !ok {
		return Reduction{}, nil
	}
	if err := l.store.UpdateBoughtSizes(ctx, r.Sizes); err != nil {
		return r, fmt.Errorf("更新账本失败: %w", err)
	}
	return r, nil
}
