package copystrategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/apperr"
)

// balanceSafety 只用可用余额的 99%
var balanceSafety = decimal.RequireFromString("0.99")

// Calculation 一次下单金额计算的结果
// FinalAmount 为零表示不执行
type Calculation struct {
	Strategy         Strategy
	TraderOrderSize  decimal.Decimal
	BaseAmount       decimal.Decimal
	Multiplier       decimal.Decimal
	FinalAmount      decimal.Decimal
	CappedByMax      bool
	ReducedByBalance bool
	BelowMinimum     bool
	Reasoning        []string
}

// Explain 把推导过程拼成一行
func (c Calculation) Explain() string {
	return strings.Join(c.Reasoning, " → ")
}

// ShouldExecute 是否需要下单
func (c Calculation) ShouldExecute() bool {
	return c.FinalAmount.IsPositive()
}

// Compute 按策略计算跟单金额
//
//	base → ×倍数 → 单笔上限 → 仓位上限 → 余额保护(99%) → 最小金额
//
// currentPositionValueUSD 是本地已有仓位的成本
func Compute(cfg *Config, traderOrderSizeUSD, availableBalanceUSD, currentPositionValueUSD decimal.Decimal) (Calculation, error) {
	if cfg == nil || cfg.Sizing == nil {
		return Calculation{}, apperr.Invariant("compute order size", errors.New("跟单配置缺少策略"))
	}

	base, why := cfg.Sizing.base(traderOrderSizeUSD)
	calc := Calculation{
		Strategy:        cfg.Sizing.Strategy(),
		TraderOrderSize: traderOrderSizeUSD,
		BaseAmount:      base,
		Reasoning:       []string{why},
	}

	multiplier := ResolveMultiplier(cfg, traderOrderSizeUSD)
	calc.Multiplier = multiplier
	final := base.Mul(multiplier)
	if !multiplier.Equal(one) {
		calc.add("%sx multiplier: $%s → $%s", multiplier, base.StringFixed(2), final.StringFixed(2))
	}

	if final.GreaterThan(cfg.MaxOrderSizeUSD) {
		final = cfg.MaxOrderSizeUSD
		calc.CappedByMax = true
		calc.add("Capped at max $%s", cfg.MaxOrderSizeUSD)
	}

	if cfg.MaxPositionSizeUSD != nil && currentPositionValueUSD.Add(final).GreaterThan(*cfg.MaxPositionSizeUSD) {
		headroom := decimal.Max(decimal.Zero, cfg.MaxPositionSizeUSD.Sub(currentPositionValueUSD))
		if headroom.LessThan(cfg.MinOrderSizeUSD) {
			final = decimal.Zero
			calc.add("Position limit reached")
		} else {
			final = headroom
			calc.add("Reduced to fit position limit ($%s)", headroom.StringFixed(2))
		}
	}

	maxAffordable := availableBalanceUSD.Mul(balanceSafety)
	if final.GreaterThan(maxAffordable) {
		final = maxAffordable
		calc.ReducedByBalance = true
		calc.add("Reduced to fit balance ($%s)", maxAffordable.StringFixed(2))
	}

	if final.LessThan(cfg.MinOrderSizeUSD) {
		calc.BelowMinimum = true
		calc.add("Below minimum $%s", cfg.MinOrderSizeUSD)
		final = decimal.Zero
	}

	calc.FinalAmount = final
	return calc, nil
}

func (c *Calculation) add(format string, args ...any) {
	c.Reasoning = append(c.Reasoning, fmt.Sprintf(format, args...))
}
