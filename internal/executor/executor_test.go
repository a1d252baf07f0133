package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/copybot/internal/copystrategy"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/store/memory"
	"github.com/betbot/copybot/pkg/persistence"
)

const (
	wallet = "0xmine"
	trader = "0xtrader"
	cond   = "0xcond"
	asset  = "token-yes"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func book(asks, bids [][2]string) *domain.OrderBook {
	b := &domain.OrderBook{Asset: asset}
	for _, l := range asks {
		b.Asks = append(b.Asks, domain.BookLevel{Price: dec(l[0]), Size: dec(l[1])})
	}
	for _, l := range bids {
		b.Bids = append(b.Bids, domain.BookLevel{Price: dec(l[0]), Size: dec(l[1])})
	}
	return b
}

type submitStep struct {
	result *domain.OrderResult
	err    error
}

// mockTransport 按脚本返回订单簿和下单结果，脚本用完后重复最后一项
type mockTransport struct {
	mu        sync.Mutex
	books     []*domain.OrderBook
	bookErr   error
	steps     []submitStep
	submitted []domain.OrderRequest
	Calls     map[string]int
}

func newMockTransport(books ...*domain.OrderBook) *mockTransport {
	return &mockTransport{books: books, Calls: make(map[string]int)}
}

func (m *mockTransport) OrderBook(context.Context, string) (*domain.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["OrderBook"]++
	if m.bookErr != nil {
		return nil, m.bookErr
	}
	b := m.books[0]
	if len(m.books) > 1 {
		m.books = m.books[1:]
	}
	return b, nil
}

func (m *mockTransport) SubmitOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls["SubmitOrder"]++
	m.submitted = append(m.submitted, req)
	if len(m.steps) == 0 {
		return &domain.OrderResult{Success: true, OrderID: "ok"}, nil
	}
	s := m.steps[0]
	if len(m.steps) > 1 {
		m.steps = m.steps[1:]
	}
	return s.result, s.err
}

type fixedBalance struct {
	amount decimal.Decimal
	err    error
}

func (f fixedBalance) AvailableBalance(context.Context, string) (decimal.Decimal, error) {
	return f.amount, f.err
}

type positions map[string]*domain.Position

func (p positions) Position(_ context.Context, w, c string) (*domain.Position, error) {
	return p[w+"|"+c], nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

type fixture struct {
	store     *memory.Store
	transport *mockTransport
	mine      positions
	theirs    positions
	notifier  *recordingNotifier
	now       time.Time
	exec      *Executor
}

func newFixture(t *testing.T, transport *mockTransport, strategy *copystrategy.Config, aggregate bool) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.New(),
		transport: transport,
		mine:      positions{},
		theirs:    positions{},
		notifier:  &recordingNotifier{},
		now:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if strategy == nil {
		strategy = &copystrategy.Config{
			Sizing:          copystrategy.Percentage{CopySize: dec("10")},
			MaxOrderSizeUSD: dec("100"),
			MinOrderSizeUSD: dec("1"),
		}
	}
	exec, err := New(Config{
		Wallet:             wallet,
		Traders:            []string{trader},
		Machine:            DefaultMachineConfig(),
		AggregationEnabled: aggregate,
		AggregationWindow:  time.Minute,
		AggregationMin:     dec("1"),
	}, Deps{
		Store:           f.store,
		Transport:       transport,
		Balances:        fixedBalance{amount: dec("1000")},
		MyPositions:     f.mine,
		TraderPositions: f.theirs,
		Notifier:        f.notifier,
		Strategy:        strategy,
		Now:             func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.exec = exec
	return f
}

func (f *fixture) insert(t *testing.T, id string, side domain.Side, usdc, price, size string) *domain.TradeRecord {
	t.Helper()
	rec := &domain.TradeRecord{
		ID: id, Trader: trader, Type: domain.ActivityTrade, Timestamp: f.now,
		ConditionID: cond, Asset: asset, Side: side,
		USDCSize: dec(usdc), Price: dec(price), Size: dec(size),
	}
	require.NoError(t, f.store.Insert(context.Background(), rec))
	return rec
}

func (f *fixture) get(t *testing.T, id string) *domain.TradeRecord {
	t.Helper()
	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

func TestBuyCompletes(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, domain.StateCompleted, rep.Result.State)
	require.Len(t, f.transport.submitted, 1)
	assert.True(t, f.transport.submitted[0].Amount.Equal(dec("20")))
	assert.Equal(t, domain.SideBuy, f.transport.submitted[0].Side)

	got := f.get(t, "b1")
	assert.True(t, got.Executed)
	assert.Equal(t, 0, got.RetryCount)
	assert.True(t, got.MyBoughtSize.Equal(dec("40")), "MyBoughtSize=%s", got.MyBoughtSize)
	assert.Empty(t, f.notifier.texts)
}

func TestBuyFillsAcrossLevels(t *testing.T) {
	f := newFixture(t, newMockTransport(
		book([][2]string{{"0.5", "20"}}, nil),
		book([][2]string{{"0.5", "1000"}}, nil),
	), nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, rep.Result.State)
	assert.Equal(t, 2, rep.Result.Orders)
	assert.True(t, f.transport.submitted[0].Amount.Equal(dec("10")))
	assert.True(t, f.transport.submitted[1].Amount.Equal(dec("10")))
	assert.True(t, f.get(t, "b1").MyBoughtSize.Equal(dec("40")))
}

func TestBuySkippedSlippage(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.6", "1000"}}, nil)), nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSkippedSlippage, rep.Result.State)
	assert.Zero(t, f.transport.Calls["SubmitOrder"])
	got := f.get(t, "b1")
	assert.True(t, got.Executed)
	assert.True(t, got.MyBoughtSize.IsZero())
}

func TestBuyNoLiquidity(t *testing.T) {
	f := newFixture(t, newMockTransport(book(nil, [][2]string{{"0.4", "10"}})), nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartialNoLiquidity, rep.Result.State)
	assert.True(t, f.get(t, "b1").Executed)
}

func TestBuyBelowMinimumSkipsWithoutOrders(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "5", "0.5", "10")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSkippedBelowMinimum, rep.Result.State)
	require.NotNil(t, rep.Calculation)
	assert.True(t, rep.Calculation.BelowMinimum)
	assert.Zero(t, f.transport.Calls["OrderBook"])
	assert.True(t, f.get(t, "b1").Executed)
}

func TestRetryExhausted(t *testing.T) {
	tr := newMockTransport(book([][2]string{{"0.5", "1000"}}, nil))
	tr.steps = []submitStep{{result: &domain.OrderResult{Success: false, Error: "order couldn't be fully filled. FOK orders are fully filled or killed."}}}
	f := newFixture(t, tr, nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartialRetryExhausted, rep.Result.State)
	assert.Equal(t, 3, tr.Calls["SubmitOrder"])

	got := f.get(t, "b1")
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, domain.StatePartialRetryExhausted, got.Result)
	assert.Len(t, f.notifier.texts, 1)
}

func TestTransportErrorCountsAsFailedAttempt(t *testing.T) {
	tr := newMockTransport(book([][2]string{{"0.5", "1000"}}, nil))
	tr.steps = []submitStep{
		{err: errors.New("connection reset")},
		{result: &domain.OrderResult{Success: true}},
	}
	f := newFixture(t, tr, nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, rep.Result.State)
	assert.Equal(t, 2, tr.Calls["SubmitOrder"])
	assert.Equal(t, 0, f.get(t, "b1").RetryCount)
}

func TestBookErrorsExhaustRetries(t *testing.T) {
	tr := newMockTransport()
	tr.bookErr = errors.New("502 bad gateway")
	f := newFixture(t, tr, nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartialRetryExhausted, rep.Result.State)
	assert.Equal(t, 3, tr.Calls["OrderBook"])
	assert.Zero(t, tr.Calls["SubmitOrder"])
}

func TestInsufficientFundsAborts(t *testing.T) {
	tr := newMockTransport(
		book([][2]string{{"0.5", "20"}}, nil),
		book([][2]string{{"0.5", "1000"}}, nil),
	)
	tr.steps = []submitStep{
		{result: &domain.OrderResult{Success: true}},
		{result: &domain.OrderResult{Success: false, Error: "not enough balance / allowance"}},
	}
	f := newFixture(t, tr, nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateAbortedInsufficientFunds, rep.Result.State)
	assert.Equal(t, 2, tr.Calls["SubmitOrder"])

	got := f.get(t, "b1")
	assert.Equal(t, 3, got.RetryCount, "中止时 retryCount 应设为重试上限")
	assert.Equal(t, domain.StateAbortedInsufficientFunds, got.Result)
	assert.True(t, got.MyBoughtSize.Equal(dec("20")), "已成交部分仍要记账，得到 %s", got.MyBoughtSize)
	require.Len(t, f.notifier.texts, 1)
	assert.Contains(t, f.notifier.texts[0], "not enough balance")
}

func TestProcessTradeIsIdempotent(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	_, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Nil(t, rep)
	assert.Equal(t, 1, f.transport.Calls["SubmitOrder"])

	require.NoError(t, f.exec.RunOnce(context.Background()))
	assert.Equal(t, 1, f.transport.Calls["SubmitOrder"])
}

func TestLookupFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, false)
	f.exec.deps.Balances = fixedBalance{err: errors.New("rpc down")}
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	_, err := f.exec.ProcessTrade(context.Background(), rec)
	require.Error(t, err)
	got := f.get(t, "b1")
	assert.False(t, got.Claimed)
	assert.False(t, got.Executed)
	assert.Zero(t, f.transport.Calls["SubmitOrder"])
}

func TestMissingSizingKeepsRecordClaimed(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), &copystrategy.Config{}, false)
	rec := f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")

	_, err := f.exec.ProcessTrade(context.Background(), rec)
	require.Error(t, err)
	got := f.get(t, "b1")
	assert.True(t, got.Claimed)
	assert.False(t, got.Executed)
}

func seedLedger(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	for id, size := range map[string]string{"buy-1": "60", "buy-2": "40"} {
		f.insert(t, id, domain.SideBuy, "30", "0.5", size)
		v := dec(size)
		require.NoError(t, f.store.RecordOutcome(ctx, id, domain.Outcome{State: domain.StateCompleted, BoughtSize: &v}))
	}
}

func TestSellProportionalToTraderAndLedger(t *testing.T) {
	f := newFixture(t, newMockTransport(book(nil, [][2]string{{"0.5", "1000"}})), nil, false)
	seedLedger(t, f)
	f.mine[wallet+"|"+cond] = &domain.Position{Asset: asset, ConditionID: cond, Size: dec("100")}
	f.theirs[trader+"|"+cond] = &domain.Position{Asset: asset, ConditionID: cond, Size: dec("80")}
	rec := f.insert(t, "s1", domain.SideSell, "10", "0.5", "20")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, rep.Result.State)
	require.Len(t, f.transport.submitted, 1)
	assert.True(t, f.transport.submitted[0].Amount.Equal(dec("20")), "应卖出 20，得到 %s", f.transport.submitted[0].Amount)
	assert.Equal(t, domain.SideSell, f.transport.submitted[0].Side)

	assert.True(t, f.get(t, "buy-1").MyBoughtSize.Equal(dec("48")))
	assert.True(t, f.get(t, "buy-2").MyBoughtSize.Equal(dec("32")))
}

func TestSellEverythingWhenTraderExits(t *testing.T) {
	f := newFixture(t, newMockTransport(book(nil, [][2]string{{"0.5", "1000"}})), nil, false)
	seedLedger(t, f)
	f.mine[wallet+"|"+cond] = &domain.Position{Asset: asset, ConditionID: cond, Size: dec("100")}
	rec := f.insert(t, "s1", domain.SideSell, "50", "0.5", "100")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, rep.Result.State)
	assert.True(t, rep.Result.Filled.Equal(dec("100")))
	assert.True(t, f.get(t, "buy-1").MyBoughtSize.IsZero())
	assert.True(t, f.get(t, "buy-2").MyBoughtSize.IsZero())
}

func TestSellWithoutPositionSkips(t *testing.T) {
	f := newFixture(t, newMockTransport(book(nil, [][2]string{{"0.5", "1000"}})), nil, false)
	rec := f.insert(t, "s1", domain.SideSell, "10", "0.5", "20")

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSkippedBelowMinimum, rep.Result.State)
	assert.Zero(t, f.transport.Calls["OrderBook"])
}

func TestMergeSellsWholePosition(t *testing.T) {
	f := newFixture(t, newMockTransport(book(nil, [][2]string{{"0.4", "1000"}})), nil, false)
	f.mine[wallet+"|"+cond] = &domain.Position{Asset: asset, ConditionID: cond, Size: dec("50")}
	rec := f.insert(t, "m1", domain.SideSell, "0", "0", "50")
	rec.Type = domain.ActivityMerge

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.ConditionMerge, rep.Result.Condition)
	assert.Equal(t, domain.StateCompleted, rep.Result.State)
	assert.True(t, f.transport.submitted[0].Amount.Equal(dec("50")))
}

func TestMergeBelowMinimumSkips(t *testing.T) {
	f := newFixture(t, newMockTransport(book(nil, [][2]string{{"0.4", "1000"}})), nil, false)
	f.mine[wallet+"|"+cond] = &domain.Position{Asset: asset, ConditionID: cond, Size: dec("0.5")}
	rec := f.insert(t, "m1", domain.SideSell, "0", "0", "1")
	rec.Type = domain.ActivityMerge

	rep, err := f.exec.ProcessTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSkippedBelowMinimum, rep.Result.State)
	assert.Zero(t, f.transport.Calls["SubmitOrder"])
}

func TestAggregationExecutesOnceWindowExpires(t *testing.T) {
	strategy := &copystrategy.Config{
		Sizing:          copystrategy.Percentage{CopySize: dec("100")},
		MaxOrderSizeUSD: dec("100"),
		MinOrderSizeUSD: dec("1"),
	}
	f := newFixture(t, newMockTransport(book([][2]string{{"0.55", "1000"}}, nil)), strategy, true)
	f.insert(t, "agg-1", domain.SideBuy, "0.4", "0.5", "0.8")
	f.insert(t, "agg-2", domain.SideBuy, "0.8", "0.6", "1.333")
	ctx := context.Background()

	require.NoError(t, f.exec.RunOnce(ctx))
	assert.Zero(t, f.transport.Calls["SubmitOrder"])
	assert.Equal(t, 1, f.exec.Buffer().Len())

	// 窗口内再次轮询不会重复放入
	require.NoError(t, f.exec.RunOnce(ctx))
	require.Len(t, f.exec.Buffer().Snapshot(), 1)
	assert.Len(t, f.exec.Buffer().Snapshot()[0].Trades, 2)

	f.now = f.now.Add(2 * time.Minute)
	require.NoError(t, f.exec.RunOnce(ctx))
	require.Equal(t, 1, f.transport.Calls["SubmitOrder"])
	assert.True(t, f.transport.submitted[0].Amount.Equal(dec("1.2")))

	first, second := f.get(t, "agg-1"), f.get(t, "agg-2")
	assert.True(t, first.Executed)
	assert.True(t, second.Executed)
	assert.Equal(t, domain.StateCompleted, second.Result)
	assert.True(t, first.MyBoughtSize.IsPositive())
	assert.True(t, second.MyBoughtSize.IsZero())
	assert.Zero(t, f.exec.Buffer().Len())
}

func TestAggregationBelowMinimumIsMarked(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, true)
	f.insert(t, "small", domain.SideBuy, "0.3", "0.5", "0.6")
	ctx := context.Background()

	require.NoError(t, f.exec.RunOnce(ctx))
	f.now = f.now.Add(2 * time.Minute)
	require.NoError(t, f.exec.RunOnce(ctx))

	got := f.get(t, "small")
	assert.True(t, got.Executed)
	assert.Equal(t, domain.StateSkippedBelowMinimum, got.Result)
	assert.Zero(t, f.transport.Calls["SubmitOrder"])
}

func TestCancelledContextStopsBetweenTrades(t *testing.T) {
	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, false)
	f.insert(t, "b1", domain.SideBuy, "200", "0.5", "400")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.exec.RunOnce(ctx))
	assert.Zero(t, f.transport.Calls["SubmitOrder"])
	assert.False(t, f.get(t, "b1").Claimed)
}

func TestSnapshotRestoresBufferAndStats(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	ctx := context.Background()

	f := newFixture(t, newMockTransport(book([][2]string{{"0.5", "1000"}}, nil)), nil, true)
	f.insert(t, "big", domain.SideBuy, "200", "0.5", "400")
	f.insert(t, "small", domain.SideBuy, "0.3", "0.5", "0.6")
	require.NoError(t, f.exec.RunOnce(ctx))
	require.NoError(t, f.exec.SaveSnapshot(svc, "copybot"))

	// 模拟重启：同一个存储，新的执行器
	restarted, err := New(f.exec.cfg, f.exec.deps)
	require.NoError(t, err)
	require.NoError(t, restarted.RestoreSnapshot(ctx, svc, "copybot"))

	assert.Equal(t, 1, restarted.Buffer().Len())
	stats := restarted.Stats()
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1, stats.ByState[domain.StateCompleted])
	assert.True(t, stats.USDCSpent.Equal(dec("20")))
}
