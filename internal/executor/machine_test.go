package executor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
)

func TestClassifyOrderError(t *testing.T) {
	cases := map[string]FailureKind{
		"not enough balance / allowance":         FailureInsufficientFunds,
		"Not Enough Balance":                     FailureInsufficientFunds,
		"insufficient ALLOWANCE for spender":     FailureInsufficientFunds,
		"rate limit exceeded":                    FailureTransient,
		"FOK orders are fully filled or killed.": FailureTransient,
		"":                                       FailureTransient,
	}
	for msg, want := range cases {
		if got := ClassifyOrderError(msg); got != want {
			t.Fatalf("ClassifyOrderError(%q) = %v，期望 %v", msg, got, want)
		}
	}
}

func TestSellSize(t *testing.T) {
	trade := &domain.TradeRecord{Size: dec("20")}
	mine := &domain.Position{Size: dec("100")}
	trader := &domain.Position{Size: dec("80")}
	one := decimal.NewFromInt(1)

	size, fraction := SellSize(trade, mine, trader, dec("100"), one)
	if !size.Equal(dec("20")) || !fraction.Equal(dec("0.2")) {
		t.Fatalf("已跟踪 100 × 20%% 应为 20，得到 %s (比例 %s)", size, fraction)
	}

	// 没有跟踪记录时按本地持仓
	size, _ = SellSize(trade, &domain.Position{Size: dec("50")}, trader, decimal.Zero, one)
	if !size.Equal(dec("10")) {
		t.Fatalf("本地 50 × 20%% 应为 10，得到 %s", size)
	}

	// 倍数放大后不超过本地持仓
	size, _ = SellSize(trade, &domain.Position{Size: dec("30")}, trader, dec("100"), dec("2"))
	if !size.Equal(dec("30")) {
		t.Fatalf("应被限制为本地持仓 30，得到 %s", size)
	}

	// 交易员已清仓
	size, _ = SellSize(trade, mine, nil, dec("100"), one)
	if !size.Equal(dec("100")) {
		t.Fatalf("交易员清仓时应卖出全部 100，得到 %s", size)
	}

	size, _ = SellSize(trade, nil, trader, dec("100"), one)
	if !size.IsZero() {
		t.Fatalf("没有本地持仓时应为 0，得到 %s", size)
	}
}

func TestSellBelowTokenMinimumCompletes(t *testing.T) {
	tr := newMockTransport(book(nil, [][2]string{{"0.5", "0.4"}}))
	m := NewMachine(DefaultMachineConfig(), tr)
	res := m.Sell(t.Context(), &domain.TradeRecord{Asset: asset}, dec("10"), testLog())
	if res.State != domain.StateCompleted {
		t.Fatalf("买一档不足最小下单量时应结束为 COMPLETED，得到 %s", res.State)
	}
	if tr.Calls["SubmitOrder"] != 0 {
		t.Fatalf("不应下单")
	}
}

func TestDustRemainderCompletes(t *testing.T) {
	tr := newMockTransport(book([][2]string{{"0.5", "1000"}}, nil))
	m := NewMachine(DefaultMachineConfig(), tr)
	res := m.Buy(t.Context(), &domain.TradeRecord{Asset: asset, Price: dec("0.5")}, dec("0.5"), testLog())
	if res.State != domain.StateCompleted || !res.Ran {
		t.Fatalf("不足 $1 的剩余应视为完成，得到 %s", res.State)
	}
	if tr.Calls["SubmitOrder"] != 0 {
		t.Fatalf("不应下单")
	}
}

func testLog() *logrus.Entry {
	return logrus.WithField("component", "test")
}
