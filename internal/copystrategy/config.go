// Package copystrategy 把交易员的下单金额换算成跟单金额
package copystrategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/apperr"
)

// Strategy 跟单策略
type Strategy string

const (
	StrategyPercentage Strategy = "PERCENTAGE"
	StrategyFixed      Strategy = "FIXED"
	StrategyAdaptive   Strategy = "ADAPTIVE"
)

// DefaultAdaptiveThreshold 自适应策略默认阈值（USD）
var DefaultAdaptiveThreshold = decimal.NewFromInt(500)

// ParseStrategy 解析策略名，未知值在加载阶段直接报配置错误
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToUpper(strings.TrimSpace(s))); st {
	case StrategyPercentage, StrategyFixed, StrategyAdaptive:
		return st, nil
	default:
		return "", apperr.Configurationf("parse strategy", "未知的跟单策略 %q（可选 PERCENTAGE/FIXED/ADAPTIVE）", s)
	}
}

// Sizing 每种策略只携带自己需要的参数
type Sizing interface {
	Strategy() Strategy
	// base 返回基础金额和一句说明
	base(traderOrderSize decimal.Decimal) (decimal.Decimal, string)
}

// Percentage 按交易员金额的百分比跟单
type Percentage struct {
	CopySize decimal.Decimal // 百分比，10 = 10%
}

func (Percentage) Strategy() Strategy { return StrategyPercentage }

func (p Percentage) base(trader decimal.Decimal) (decimal.Decimal, string) {
	amount := trader.Mul(p.CopySize).Div(hundred)
	return amount, fmt.Sprintf("%s%% of trader's $%s = $%s", p.CopySize.String(), trader.StringFixed(2), amount.StringFixed(2))
}

// Fixed 每笔固定金额
type Fixed struct {
	Amount decimal.Decimal
}

func (Fixed) Strategy() Strategy { return StrategyFixed }

func (f Fixed) base(decimal.Decimal) (decimal.Decimal, string) {
	return f.Amount, fmt.Sprintf("Fixed amount: $%s", f.Amount.StringFixed(2))
}

// Adaptive 小单放大比例、大单缩小比例
type Adaptive struct {
	CopySize   decimal.Decimal // 阈值处的百分比
	MinPercent decimal.Decimal // 2×阈值及以上使用
	MaxPercent decimal.Decimal // 交易员金额为 0 时使用
	Threshold  decimal.Decimal // 为零时使用 DefaultAdaptiveThreshold
}

func (Adaptive) Strategy() Strategy { return StrategyAdaptive }

func (a Adaptive) base(trader decimal.Decimal) (decimal.Decimal, string) {
	pct := a.Percent(trader)
	amount := trader.Mul(pct).Div(hundred)
	return amount, fmt.Sprintf("Adaptive %s%% of trader's $%s = $%s", pct.StringFixed(1), trader.StringFixed(2), amount.StringFixed(2))
}

// Percent 计算自适应百分比
//   - trader >= threshold: lerp(copySize, min, min(1, trader/threshold-1))
//   - trader <  threshold: lerp(max, copySize, trader/threshold)
func (a Adaptive) Percent(trader decimal.Decimal) decimal.Decimal {
	threshold := a.Threshold
	if !threshold.IsPositive() {
		threshold = DefaultAdaptiveThreshold
	}
	ratio := trader.Div(threshold)
	if trader.GreaterThanOrEqual(threshold) {
		factor := decimal.Min(one, ratio.Sub(one))
		return lerp(a.CopySize, a.MinPercent, factor)
	}
	return lerp(a.MaxPercent, a.CopySize, ratio)
}

// Config 跟单配置，加载后不可变
type Config struct {
	Sizing Sizing

	// Tiers 非空时忽略 TradeMultiplier
	Tiers []Tier
	// TradeMultiplier 为 nil 表示 1.0
	TradeMultiplier *decimal.Decimal

	MaxOrderSizeUSD decimal.Decimal
	MinOrderSizeUSD decimal.Decimal
	// MaxPositionSizeUSD 可选，nil 表示不限制
	MaxPositionSizeUSD *decimal.Decimal
	// MaxDailyVolumeUSD 可选，本引擎不检查，留给外层
	MaxDailyVolumeUSD *decimal.Decimal
}

// Strategy 当前策略，Sizing 为空时返回空字符串
func (c *Config) Strategy() Strategy {
	if c == nil || c.Sizing == nil {
		return ""
	}
	return c.Sizing.Strategy()
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

func lerp(a, b, t decimal.Decimal) decimal.Decimal {
	t = decimal.Max(decimal.Zero, decimal.Min(one, t))
	return a.Add(b.Sub(a).Mul(t))
}

// Ptr 便于构造可选字段
func Ptr(d decimal.Decimal) *decimal.Decimal { return &d }
