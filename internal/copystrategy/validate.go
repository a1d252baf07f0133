package copystrategy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/apperr"
)

// Validate 返回配置中的全部问题
func Validate(cfg *Config) []error {
	var errs []error
	if cfg == nil || cfg.Sizing == nil {
		return []error{errors.New("strategy is required")}
	}

	switch s := cfg.Sizing.(type) {
	case Percentage:
		if !s.CopySize.IsPositive() {
			errs = append(errs, errors.New("copySize must be positive"))
		}
		if s.CopySize.GreaterThan(hundred) {
			errs = append(errs, errors.New("copySize for PERCENTAGE strategy should be <= 100"))
		}
	case Fixed:
		if !s.Amount.IsPositive() {
			errs = append(errs, errors.New("copySize must be positive"))
		}
	case Adaptive:
		if !s.CopySize.IsPositive() {
			errs = append(errs, errors.New("copySize must be positive"))
		}
		if !s.MinPercent.IsPositive() || !s.MaxPercent.IsPositive() {
			errs = append(errs, errors.New("ADAPTIVE strategy requires adaptiveMinPercent and adaptiveMaxPercent"))
		}
		if s.MinPercent.GreaterThan(s.MaxPercent) {
			errs = append(errs, errors.New("adaptiveMinPercent cannot be greater than adaptiveMaxPercent"))
		}
		if s.Threshold.IsNegative() {
			errs = append(errs, errors.New("adaptiveThreshold must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported sizing %T", s))
	}

	if !cfg.MaxOrderSizeUSD.IsPositive() {
		errs = append(errs, errors.New("maxOrderSizeUSD must be positive"))
	}
	if !cfg.MinOrderSizeUSD.IsPositive() {
		errs = append(errs, errors.New("minOrderSizeUSD must be positive"))
	}
	if cfg.MinOrderSizeUSD.GreaterThan(cfg.MaxOrderSizeUSD) {
		errs = append(errs, errors.New("minOrderSizeUSD cannot be greater than maxOrderSizeUSD"))
	}
	if cfg.MaxPositionSizeUSD != nil && !cfg.MaxPositionSizeUSD.IsPositive() {
		errs = append(errs, errors.New("maxPositionSizeUSD must be positive when set"))
	}
	if cfg.MaxDailyVolumeUSD != nil && !cfg.MaxDailyVolumeUSD.IsPositive() {
		errs = append(errs, errors.New("maxDailyVolumeUSD must be positive when set"))
	}
	if cfg.TradeMultiplier != nil && cfg.TradeMultiplier.IsNegative() {
		errs = append(errs, errors.New("tradeMultiplier must not be negative"))
	}
	return errs
}

// MustBeValid 校验失败时返回 ConfigurationError
func MustBeValid(cfg *Config) error {
	return apperr.Join("validate copy strategy", Validate(cfg))
}

// Describe 启动日志用的一行摘要
func Describe(cfg *Config) string {
	var b strings.Builder
	switch s := cfg.Sizing.(type) {
	case Percentage:
		fmt.Fprintf(&b, "PERCENTAGE %s%%", s.CopySize)
	case Fixed:
		fmt.Fprintf(&b, "FIXED $%s", s.Amount)
	case Adaptive:
		threshold := s.Threshold
		if !threshold.IsPositive() {
			threshold = DefaultAdaptiveThreshold
		}
		fmt.Fprintf(&b, "ADAPTIVE %s%% (%s%%-%s%%, threshold $%s)", s.CopySize, s.MinPercent, s.MaxPercent, threshold)
	default:
		b.WriteString("UNKNOWN")
	}
	fmt.Fprintf(&b, ", order $%s-$%s", cfg.MinOrderSizeUSD, cfg.MaxOrderSizeUSD)
	if cfg.MaxPositionSizeUSD != nil {
		fmt.Fprintf(&b, ", position <= $%s", cfg.MaxPositionSizeUSD)
	}
	if len(cfg.Tiers) > 0 {
		fmt.Fprintf(&b, ", tiers %s", FormatTiers(cfg.Tiers))
	} else if cfg.TradeMultiplier != nil {
		fmt.Fprintf(&b, ", multiplier %sx", cfg.TradeMultiplier)
	}
	return b.String()
}

// Legacy 旧版 COPY_PERCENTAGE × TRADE_MULTIPLIER 配置
// 有分档时倍数只用于分档之外，所以不再单独保存
func Legacy(copyPercentage, tradeMultiplier decimal.Decimal, tiers []Tier, maxOrder, minOrder decimal.Decimal) *Config {
	cfg := &Config{
		Sizing:          Percentage{CopySize: copyPercentage.Mul(tradeMultiplier)},
		Tiers:           tiers,
		MaxOrderSizeUSD: maxOrder,
		MinOrderSizeUSD: minOrder,
	}
	if len(tiers) == 0 && !tradeMultiplier.Equal(one) {
		cfg.TradeMultiplier = Ptr(tradeMultiplier)
	}
	return cfg
}

// Recommended 按余额给出推荐配置
func Recommended(balanceUSD decimal.Decimal) *Config {
	d := decimal.NewFromInt
	switch {
	case balanceUSD.LessThan(d(500)):
		return &Config{
			Sizing:             Percentage{CopySize: d(5)},
			MaxOrderSizeUSD:    d(20),
			MinOrderSizeUSD:    d(1),
			MaxPositionSizeUSD: Ptr(d(50)),
			MaxDailyVolumeUSD:  Ptr(d(100)),
		}
	case balanceUSD.LessThan(d(2000)):
		return &Config{
			Sizing:             Percentage{CopySize: d(10)},
			MaxOrderSizeUSD:    d(50),
			MinOrderSizeUSD:    d(1),
			MaxPositionSizeUSD: Ptr(d(200)),
			MaxDailyVolumeUSD:  Ptr(d(500)),
		}
	default:
		return &Config{
			Sizing:             Adaptive{CopySize: d(10), MinPercent: d(5), MaxPercent: d(15), Threshold: d(300)},
			MaxOrderSizeUSD:    d(100),
			MinOrderSizeUSD:    d(1),
			MaxPositionSizeUSD: Ptr(d(1000)),
			MaxDailyVolumeUSD:  Ptr(d(2000)),
		}
	}
}
