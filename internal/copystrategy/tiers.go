package copystrategy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/apperr"
)

const tiersField = "tieredMultipliers"

// Tier 按交易员金额分段的倍数，区间左闭右开
type Tier struct {
	Min        decimal.Decimal
	Max        decimal.Decimal // Unbounded 时无意义
	Unbounded  bool
	Multiplier decimal.Decimal
}

func (t Tier) String() string {
	if t.Unbounded {
		return fmt.Sprintf("%s+:%s", t.Min, t.Multiplier)
	}
	return fmt.Sprintf("%s-%s:%s", t.Min, t.Max, t.Multiplier)
}

// contains 金额是否落在本档
func (t Tier) contains(size decimal.Decimal) bool {
	if size.LessThan(t.Min) {
		return false
	}
	return t.Unbounded || size.LessThan(t.Max)
}

// ParseTiers 解析 "1-10:2.0,10-100:1.0,500+:0.1"
// 结果按 Min 升序；无上界的档必须在最后，相邻档不能重叠，允许有空档
func ParseTiers(text string) ([]Tier, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var tiers []Tier
	for _, seg := range strings.Split(text, ",") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		tier, err := parseTier(seg)
		if err != nil {
			return nil, err
		}
		tiers = append(tiers, tier)
	}

	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Min.LessThan(tiers[j].Min) })

	for i := 0; i < len(tiers)-1; i++ {
		cur, next := tiers[i], tiers[i+1]
		if cur.Unbounded {
			return nil, apperr.Validationf(tiersField, "无上界的档必须放在最后: %s+", cur.Min)
		}
		if cur.Max.GreaterThan(next.Min) {
			return nil, apperr.Validationf(tiersField, "档位重叠: [%s] 和 [%s]", cur, next)
		}
	}
	return tiers, nil
}

func parseTier(seg string) (Tier, error) {
	parts := strings.Split(seg, ":")
	if len(parts) != 2 {
		return Tier{}, apperr.Validationf(tiersField, "档位格式错误 %q，应为 \"min-max:multiplier\" 或 \"min+:multiplier\"", seg)
	}
	rangeText, multText := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	mult, err := decimal.NewFromString(multText)
	if err != nil || mult.IsNegative() {
		return Tier{}, apperr.Validationf(tiersField, "档位 %q 的倍数无效: %s", seg, multText)
	}

	if strings.HasSuffix(rangeText, "+") {
		lo, err := decimal.NewFromString(strings.TrimSuffix(rangeText, "+"))
		if err != nil || lo.IsNegative() {
			return Tier{}, apperr.Validationf(tiersField, "档位 %q 的下界无效: %s", seg, rangeText)
		}
		return Tier{Min: lo, Unbounded: true, Multiplier: mult}, nil
	}

	bounds := strings.Split(rangeText, "-")
	if len(bounds) != 2 || bounds[0] == "" || bounds[1] == "" {
		return Tier{}, apperr.Validationf(tiersField, "档位 %q 的区间格式错误: %q", seg, rangeText)
	}
	lo, err := decimal.NewFromString(bounds[0])
	if err != nil {
		return Tier{}, apperr.Validationf(tiersField, "档位 %q 的下界无效: %s", seg, bounds[0])
	}
	hi, err := decimal.NewFromString(bounds[1])
	if err != nil {
		return Tier{}, apperr.Validationf(tiersField, "档位 %q 的上界无效: %s", seg, bounds[1])
	}
	if lo.IsNegative() {
		return Tier{}, apperr.Validationf(tiersField, "档位 %q 的下界不能为负: %s", seg, bounds[0])
	}
	if hi.LessThanOrEqual(lo) {
		return Tier{}, apperr.Validationf(tiersField, "档位 %q 的上界 %s 必须大于 %s", seg, hi, lo)
	}
	return Tier{Min: lo, Max: hi, Multiplier: mult}, nil
}

// FormatTiers ParseTiers 的逆操作
func FormatTiers(tiers []Tier) string {
	parts := make([]string, 0, len(tiers))
	for _, t := range tiers {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ",")
}

// ResolveMultiplier 返回交易员金额对应的倍数
// 按升序扫描取第一个命中的档；都不命中（落在空档或低于首档）时取最后一档
// 没有配置分档时使用 TradeMultiplier，默认 1.0
func ResolveMultiplier(cfg *Config, orderSizeUSD decimal.Decimal) decimal.Decimal {
	if len(cfg.Tiers) > 0 {
		for _, t := range cfg.Tiers {
			if t.contains(orderSizeUSD) {
				return t.Multiplier
			}
		}
		return cfg.Tiers[len(cfg.Tiers)-1].Multiplier
	}
	if cfg.TradeMultiplier != nil {
		return *cfg.TradeMultiplier
	}
	return one
}
