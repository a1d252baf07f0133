package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

type fakeStore struct {
	entries []domain.LedgerEntry
	updated map[string]decimal.Decimal
}

func (f *fakeStore) TrackedBuys(context.Context, string, string, string) ([]domain.LedgerEntry, error) {
	return f.entries, nil
}

func (f *fakeStore) UpdateBoughtSizes(_ context.Context, sizes map[string]decimal.Decimal) error {
	f.updated = sizes
	return nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore() *fakeStore {
	return &fakeStore{entries: []domain.LedgerEntry{
		{TradeID: "b1", MyBoughtSize: d("60")},
		{TradeID: "b2", MyBoughtSize: d("40")},
		{TradeID: "b3", MyBoughtSize: d("0")},
	}}
}

func TestHoldings(t *testing.T) {
	l := New(newStore())
	h, err := l.Holdings(context.Background(), "0xabc", "token", "cond")
	if err != nil {
		t.Fatal(err)
	}
	if !h.Total.Equal(d("100")) {
		t.Fatalf("期望合计 100，得到 %s", h.Total)
	}
	if len(h.Entries) != 2 {
		t.Fatalf("MyBoughtSize 为 0 的记录不应计入，得到 %d 条", len(h.Entries))
	}
}

func TestApplySell_Partial(t *testing.T) {
	st := newStore()
	l := New(st)
	h, _ := l.Holdings(context.Background(), "0xabc", "token", "cond")

	r, err := l.ApplySell(context.Background(), h, d("40"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Cleared {
		t.Fatalf("卖出 40%% 不应清仓")
	}
	if !st.updated["b1"].Equal(d("36")) || !st.updated["b2"].Equal(d("24")) {
		t.Fatalf("每条应按 0.6 缩放，得到 %v", st.updated)
	}
}

func TestApplySell_Full(t *testing.T) {
	st := newStore()
	l := New(st)
	h, _ := l.Holdings(context.Background(), "0xabc", "token", "cond")

	r, err := l.ApplySell(context.Background(), h, d("99"))
	if err != nil {
		t.Fatal(err)
	}
	if !r.Cleared {
		t.Fatalf("卖出 99%% 应清仓")
	}
	for id, v := range st.updated {
		if !v.IsZero() {
			t.Fatalf("%s 应清零，得到 %s", id, v)
		}
	}
}

func TestApplySell_Nothing(t *testing.T) {
	st := newStore()
	l := New(st)
	h, _ := l.Holdings(context.Background(), "0xabc", "token", "cond")

	if _, err := l.ApplySell(context.Background(), h, decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if st.updated != nil {
		t.Fatalf("没有卖出时不应写账本")
	}
	if _, ok := PlanSell(Holdings{Total: decimal.Zero}, d("5")); ok {
		t.Fatalf("没有跟踪记录时不应生成计划")
	}
}
