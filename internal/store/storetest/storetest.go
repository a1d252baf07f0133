// Package storetest 各 TradeStore 实现共用的行为测试
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Record 构造一条测试记录
func Record(id, trader string, side domain.Side, at time.Duration) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:          id,
		Trader:      trader,
		Type:        domain.ActivityTrade,
		Timestamp:   base.Add(at),
		ConditionID: "0xcond",
		Asset:       "token-1",
		Side:        side,
		Size:        decimal.NewFromInt(10),
		USDCSize:    decimal.NewFromInt(5),
		Price:       decimal.RequireFromString("0.5"),
		Slug:        "will-it-rain",
	}
}

// Run 对 newStore 返回的空存储跑完整的行为用例
func Run(t *testing.T, newStore func(t *testing.T) ports.TradeStore) {
	ctx := context.Background()

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		rec := Record("a", "0xt1", domain.SideBuy, 0)
		require.NoError(t, s.Insert(ctx, rec))

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "0xt1", got.Trader)
		assert.True(t, got.Price.Equal(rec.Price))
		assert.True(t, got.Timestamp.Equal(rec.Timestamp))
		assert.False(t, got.Executed)

		assert.True(t, errors.Is(s.Insert(ctx, rec), store.ErrDuplicateKey))
		_, err = s.Get(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("pending filters and orders", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, Record("late", "0xt1", domain.SideBuy, 2*time.Minute)))
		require.NoError(t, s.Insert(ctx, Record("early", "0xt1", domain.SideSell, time.Minute)))
		require.NoError(t, s.Insert(ctx, Record("other", "0xt2", domain.SideBuy, 0)))
		redeem := Record("redeem", "0xt1", domain.SideBuy, 0)
		redeem.Type = domain.ActivityRedeem
		require.NoError(t, s.Insert(ctx, redeem))
		merge := Record("merge", "0xt1", domain.SideSell, 3*time.Minute)
		merge.Type = domain.ActivityMerge
		require.NoError(t, s.Insert(ctx, merge))

		got, err := s.PendingTrades(ctx, []string{"0xt1"})
		require.NoError(t, err)
		var ids []string
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"early", "late", "merge"}, ids)

		all, err := s.PendingTrades(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, Record("a", "0xt1", domain.SideBuy, 0)))

		ok, err := s.Claim(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Claim(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		pending, err := s.PendingTrades(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, pending)

		require.NoError(t, s.Release(ctx, "a"))
		ok, err = s.Claim(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("record outcome", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, Record("a", "0xt1", domain.SideBuy, 0)))
		_, err := s.Claim(ctx, "a")
		require.NoError(t, err)

		bought := decimal.RequireFromString("19.6")
		require.NoError(t, s.RecordOutcome(ctx, "a", domain.Outcome{
			State: domain.StatePartialRetryExhausted, RetryCount: 3, BoughtSize: &bought,
		}))
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, got.Executed)
		assert.Equal(t, 3, got.RetryCount)
		assert.Equal(t, domain.StatePartialRetryExhausted, got.Result)
		assert.True(t, got.MyBoughtSize.Equal(bought))

		// 已执行的记录不能再被认领，也不能被 Release 放回
		require.NoError(t, s.Release(ctx, "a"))
		ok, err := s.Claim(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.True(t, errors.Is(s.RecordOutcome(ctx, "missing", domain.Outcome{State: domain.StateCompleted}), store.ErrNotFound))
	})

	t.Run("mark processed skips claimed", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Insert(ctx, Record("a", "0xt1", domain.SideBuy, 0)))
		require.NoError(t, s.Insert(ctx, Record("b", "0xt1", domain.SideBuy, time.Second)))
		_, err := s.Claim(ctx, "b")
		require.NoError(t, err)

		require.NoError(t, s.MarkProcessed(ctx, []string{"a", "b"}, domain.StateSkippedBelowMinimum))
		a, _ := s.Get(ctx, "a")
		b, _ := s.Get(ctx, "b")
		assert.True(t, a.Executed)
		assert.Equal(t, domain.StateSkippedBelowMinimum, a.Result)
		assert.False(t, b.Executed)
	})

	t.Run("ledger entries", func(t *testing.T) {
		s := newStore(t)
		for i, id := range []string{"b1", "b2", "b3"} {
			require.NoError(t, s.Insert(ctx, Record(id, "0xt1", domain.SideBuy, time.Duration(i)*time.Second)))
		}
		sizes := map[string]decimal.Decimal{"b1": decimal.NewFromInt(60), "b2": decimal.NewFromInt(40), "b3": decimal.Zero}
		for id, v := range sizes {
			v := v
			require.NoError(t, s.RecordOutcome(ctx, id, domain.Outcome{State: domain.StateCompleted, BoughtSize: &v}))
		}

		entries, err := s.TrackedBuys(ctx, "0xt1", "token-1", "0xcond")
		require.NoError(t, err)
		total := decimal.Zero
		for _, e := range entries {
			total = total.Add(e.MyBoughtSize)
		}
		assert.True(t, total.Equal(decimal.NewFromInt(100)), "合计应为 100，得到 %s", total)

		require.NoError(t, s.UpdateBoughtSizes(ctx, map[string]decimal.Decimal{
			"b1": decimal.NewFromInt(48), "b2": decimal.NewFromInt(32),
		}))
		b1, _ := s.Get(ctx, "b1")
		assert.True(t, b1.MyBoughtSize.Equal(decimal.NewFromInt(48)))

		none, err := s.TrackedBuys(ctx, "0xother", "token-1", "0xcond")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(ctx))
	})
}
