package executor

import (
	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

// SellSize 交易员卖出时我方要卖出的 token 数
//
// 交易员已无持仓时卖出全部本地持仓；否则按交易员本次卖出占其卖前持仓的比例，
// 乘以已跟踪的买入量（没有跟踪记录时用本地持仓），再乘倍数，最后不超过本地持仓
func SellSize(trade *domain.TradeRecord, mine, trader *domain.Position, tracked, multiplier decimal.Decimal) (size, fraction decimal.Decimal) {
	if mine == nil || !mine.Size.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	if trader == nil || !trader.Size.IsPositive() {
		return mine.Size, decimal.NewFromInt(1)
	}

	before := trader.Size.Add(trade.Size)
	fraction = trade.Size.Div(before)

	base := mine.Size.Mul(fraction)
	if tracked.IsPositive() {
		base = tracked.Mul(fraction)
	}
	size = base.Mul(multiplier)
	if size.GreaterThan(mine.Size) {
		size = mine.Size
	}
	return size, fraction
}
