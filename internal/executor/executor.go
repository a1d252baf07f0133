// Package executor 跟单执行器：读取待执行的交易员活动，计算跟单数量，驱动下单状态机并回写结果
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/aggregator"
	"github.com/betbot/copybot/internal/apperr"
	"github.com/betbot/copybot/internal/copystrategy"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ledger"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/pkg/logger"
)

// Config 执行器配置
type Config struct {
	Wallet       string   // 自己的代理钱包
	Traders      []string // 跟单的交易员地址
	PollInterval time.Duration
	Machine      MachineConfig

	AggregationEnabled bool
	AggregationWindow  time.Duration
	AggregationMin     decimal.Decimal
}

// Deps 执行器依赖
type Deps struct {
	Store           ports.TradeStore
	Transport       ports.ExecutionTransport
	Balances        ports.BalanceProvider
	MyPositions     ports.PositionProvider // 自己钱包的持仓
	TraderPositions ports.PositionProvider // 交易员的持仓
	Notifier        ports.Notifier         // 可选
	Strategy        *copystrategy.Config
	Now             func() time.Time // 可选，测试用
}

// Report 一笔（或一组聚合）交易的处理结果
type Report struct {
	RunID       string
	TradeIDs    []string
	Result      Result
	Calculation *copystrategy.Calculation
}

// Executor 跟单执行器，串行处理交易
type Executor struct {
	cfg      Config
	deps     Deps
	machine  *Machine
	ledger   *ledger.Ledger
	buffer   *aggregator.Buffer
	now      func() time.Time
	notifier ports.Notifier

	statsMu sync.Mutex
	stats   Stats
}

// New 创建执行器
func New(cfg Config, deps Deps) (*Executor, error) {
	if deps.Store == nil || deps.Transport == nil || deps.Balances == nil ||
		deps.MyPositions == nil || deps.TraderPositions == nil {
		return nil, apperr.Configurationf("executor", "缺少必要依赖")
	}
	if deps.Strategy == nil {
		return nil, apperr.Configurationf("executor", "缺少跟单策略配置")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}

	e := &Executor{
		cfg:      cfg,
		deps:     deps,
		machine:  NewMachine(cfg.Machine, deps.Transport),
		ledger:   ledger.New(deps.Store),
		now:      now,
		notifier: notifier,
		stats:    newStats(now()),
	}
	if cfg.AggregationEnabled {
		e.buffer = aggregator.NewBuffer(aggregator.Config{
			Window:   cfg.AggregationWindow,
			MinTotal: cfg.AggregationMin,
		}, deps.Store)
	}
	return e, nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string) error { return nil }

// Buffer 聚合缓冲区，未启用时为 nil
func (e *Executor) Buffer() *aggregator.Buffer { return e.buffer }

// Strategy 当前策略配置
func (e *Executor) Strategy() *copystrategy.Config { return e.deps.Strategy }

// Run 轮询待执行交易直到 ctx 结束
// ctx 只在两笔交易之间检查，正在执行的交易总会走到终态
func (e *Executor) Run(ctx context.Context) error {
	logger.Header("🚀 跟单执行器已启动")
	logger.Infof("钱包 %s，跟单 %d 个交易员，策略: %s", e.cfg.Wallet, len(e.cfg.Traders), copystrategy.Describe(e.deps.Strategy))
	if e.buffer != nil {
		logger.Infof("小额买单聚合已启用: 窗口 %s，最低 $%s", e.cfg.AggregationWindow, e.cfg.AggregationMin.StringFixed(2))
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := e.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("执行轮询出错: %v", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("跟单执行器已停止")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce 处理一轮：读取待执行交易，立即执行或放入聚合缓冲区，再执行到期的聚合
func (e *Executor) RunOnce(ctx context.Context) error {
	trades, err := e.deps.Store.PendingTrades(ctx, e.cfg.Traders)
	if err != nil {
		return apperr.Database("读取待执行交易", err)
	}
	if len(trades) > 0 {
		logger.Infof("💥 %d 笔新交易待处理", len(trades))
	}

	var errs []error
	for _, t := range trades {
		if ctx.Err() != nil {
			return nil
		}
		if e.buffer != nil && e.buffer.Eligible(t) {
			if e.buffer.Admit(t, e.now()) {
				metrics.TradesBuffered.Add(1)
				logger.Infof("📥 %s 买单 $%s 低于聚合阈值，进入缓冲区 (%s)", short(t.Trader), t.USDCSize.StringFixed(2), t.Label())
			}
			continue
		}
		if _, err := e.ProcessTrade(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}

	if e.buffer != nil && ctx.Err() == nil {
		batches, err := e.buffer.DrainReady(ctx, e.now())
		if err != nil {
			errs = append(errs, err)
		}
		for i, b := range batches {
			if ctx.Err() != nil {
				// 未执行的批次放回缓冲区，随快照保存
				for _, rest := range batches[i:] {
					e.buffer.Restore([]aggregator.Entry{rest.Entry})
				}
				break
			}
			if _, err := e.ProcessBatch(ctx, b); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ProcessTrade 认领并执行一笔交易
// 已执行或已被认领的记录直接返回 (nil, nil)
func (e *Executor) ProcessTrade(ctx context.Context, t *domain.TradeRecord) (*Report, error) {
	ok, err := e.deps.Store.Claim(ctx, t.ID)
	if err != nil {
		return nil, apperr.Database("认领交易", err)
	}
	if !ok {
		logger.Debugf("交易 %s 已被处理，跳过", t.ID)
		return nil, nil
	}
	return e.execute(context.WithoutCancel(ctx), t, []string{t.ID})
}

// ProcessBatch 认领并执行一组聚合买单
func (e *Executor) ProcessBatch(ctx context.Context, b *aggregator.Batch) (*Report, error) {
	var claimed []*domain.TradeRecord
	for _, t := range b.Trades {
		ok, err := e.deps.Store.Claim(ctx, t.ID)
		if err != nil {
			e.release(context.WithoutCancel(ctx), recordIDs(claimed))
			return nil, apperr.Database("认领聚合交易", err)
		}
		if ok {
			claimed = append(claimed, t)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	if len(claimed) < len(b.Trades) {
		b = aggregator.NewBatch(b.Key, claimed, b.FirstTradeAt)
	}

	metrics.AggregationsExecuted.Add(1)
	logger.Header("📊 执行聚合买单")
	logger.Infof("%s %s: %d 笔合计 $%s，均价 %s", short(b.Key.Trader), b.Trades[0].Label(), len(b.Trades),
		b.TotalUSDC.StringFixed(2), b.AveragePrice.StringFixed(4))
	return e.execute(context.WithoutCancel(ctx), b.Synthetic(), b.TradeIDs())
}

// execute 对已认领的记录执行；ids[0] 承载账本，其余成员共享终态
func (e *Executor) execute(ctx context.Context, t *domain.TradeRecord, ids []string) (rep *Report, err error) {
	runID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"component": "executor",
		"run":       runID[:8],
		"trader":    short(t.Trader),
		"market":    t.Label(),
	})

	defer func() {
		if r := recover(); r != nil {
			// 记录保持认领状态，留给人工排查
			err = apperr.Invariant("execute trade", fmt.Errorf("panic: %v", r))
			log.Errorf("执行交易 %s 时崩溃: %v", t.ID, r)
		}
	}()

	cond := domain.ConditionOf(t)
	logger.Separator()
	log.Infof("⚡ %s %s $%s @ %s (%s tokens)", logger.SideLabel(string(t.Side)), cond, t.USDCSize.StringFixed(2), t.Price, t.Size.StringFixed(2))

	rep = &Report{RunID: runID, TradeIDs: ids}
	switch cond {
	case domain.ConditionBuy:
		rep.Result, rep.Calculation, err = e.executeBuy(ctx, t, log)
	case domain.ConditionSell:
		rep.Result, err = e.executeSell(ctx, t, log)
	case domain.ConditionMerge:
		rep.Result, err = e.executeMerge(ctx, t, log)
	default:
		err = apperr.Invariant("execute trade", fmt.Errorf("未知执行条件 %q", cond))
	}
	if err != nil {
		if apperr.IsOperational(err) {
			// 没有发出任何订单，放回待执行队列
			e.release(ctx, ids)
			log.Warnf("执行前置查询失败，稍后重试: %v", err)
		} else {
			log.Errorf("执行交易失败，记录保持认领: %v", err)
		}
		return nil, err
	}

	if err := e.recordOutcome(ctx, cond, ids, rep.Result); err != nil {
		return rep, err
	}
	e.observe(rep)
	e.alert(ctx, t, rep, log)
	log.Infof("终态 %s (成交 %s tokens, 重试 %d)", rep.Result.State, rep.Result.Filled.StringFixed(4), rep.Result.RetryCount)
	return rep, nil
}

func (e *Executor) executeBuy(ctx context.Context, t *domain.TradeRecord, log *logrus.Entry) (Result, *copystrategy.Calculation, error) {
	balance, err := e.deps.Balances.AvailableBalance(ctx, e.cfg.Wallet)
	if err != nil {
		return Result{}, nil, apperr.Network("查询余额", err)
	}
	mine, err := e.deps.MyPositions.Position(ctx, e.cfg.Wallet, t.ConditionID)
	if err != nil {
		return Result{}, nil, apperr.Network("查询自己的持仓", err)
	}

	calc, err := copystrategy.Compute(e.deps.Strategy, t.USDCSize, balance, mine.CostValue())
	if err != nil {
		return Result{}, nil, err
	}
	log.Infof("💰 余额 $%s，持仓成本 $%s；%s", balance.StringFixed(2), mine.CostValue().StringFixed(2), calc.Explain())
	if !calc.ShouldExecute() {
		return skipped(domain.ConditionBuy, domain.StateSkippedBelowMinimum), &calc, nil
	}
	return e.machine.Buy(ctx, t, calc.FinalAmount, log), &calc, nil
}

func (e *Executor) executeSell(ctx context.Context, t *domain.TradeRecord, log *logrus.Entry) (Result, error) {
	mine, err := e.deps.MyPositions.Position(ctx, e.cfg.Wallet, t.ConditionID)
	if err != nil {
		return Result{}, apperr.Network("查询自己的持仓", err)
	}
	if mine == nil || !mine.Size.IsPositive() {
		log.Info("没有可卖出的持仓，跳过")
		return skipped(domain.ConditionSell, domain.StateSkippedBelowMinimum), nil
	}
	trader, err := e.deps.TraderPositions.Position(ctx, t.Trader, t.ConditionID)
	if err != nil {
		return Result{}, apperr.Network("查询交易员持仓", err)
	}
	holdings, err := e.ledger.Holdings(ctx, t.Trader, t.Asset, t.ConditionID)
	if err != nil {
		return Result{}, apperr.Database("读取仓位账本", err)
	}

	multiplier := copystrategy.ResolveMultiplier(e.deps.Strategy, t.USDCSize)
	size, fraction := SellSize(t, mine, trader, holdings.Total, multiplier)
	log.Infof("📉 交易员卖出 %s%% 持仓，已跟踪 %s tokens，本地 %s tokens，倍数 %sx → 卖出 %s tokens",
		fraction.Mul(decimal.NewFromInt(100)).StringFixed(2), holdings.Total.StringFixed(2), mine.Size.StringFixed(2),
		multiplier, size.StringFixed(2))
	if size.LessThan(e.machine.Config().MinOrderTokens) {
		return skipped(domain.ConditionSell, domain.StateSkippedBelowMinimum), nil
	}

	res := e.machine.Sell(ctx, t, size, log)
	if res.Filled.IsPositive() && !holdings.Empty() {
		r, err := e.ledger.ApplySell(ctx, holdings, res.Filled)
		if err != nil {
			// 订单已成交，账本写入失败只记录
			log.Errorf("更新仓位账本失败: %v", err)
		} else if r.Cleared {
			log.Infof("仓位账本已清零 (%d 条买入记录)", len(r.Sizes))
		} else {
			log.Infof("仓位账本按 %s%% 缩减", r.SoldFraction.Mul(decimal.NewFromInt(100)).StringFixed(2))
		}
	}
	return res, nil
}

func (e *Executor) executeMerge(ctx context.Context, t *domain.TradeRecord, log *logrus.Entry) (Result, error) {
	mine, err := e.deps.MyPositions.Position(ctx, e.cfg.Wallet, t.ConditionID)
	if err != nil {
		return Result{}, apperr.Network("查询自己的持仓", err)
	}
	if mine == nil || mine.Size.LessThan(e.machine.Config().MinOrderTokens) {
		log.Info("没有可合并的持仓，跳过")
		return skipped(domain.ConditionMerge, domain.StateSkippedBelowMinimum), nil
	}
	return e.machine.Merge(ctx, t, mine.Size, log), nil
}

// outcomeOf 把执行结果映射为回写字段
func (e *Executor) outcomeOf(cond domain.Condition, res Result) domain.Outcome {
	out := domain.Outcome{State: res.State}
	switch res.State {
	case domain.StateAbortedInsufficientFunds:
		out.RetryCount = e.machine.Config().RetryLimit
	case domain.StatePartialRetryExhausted:
		out.RetryCount = res.RetryCount
	}
	if cond == domain.ConditionBuy && res.Ran {
		filled := res.Filled
		out.BoughtSize = &filled
	}
	return out
}

func (e *Executor) recordOutcome(ctx context.Context, cond domain.Condition, ids []string, res Result) error {
	out := e.outcomeOf(cond, res)
	for i, id := range ids {
		o := out
		if i > 0 {
			o.BoughtSize = nil
		}
		if err := e.deps.Store.RecordOutcome(ctx, id, o); err != nil {
			return apperr.Database("写入执行结果", err)
		}
		metrics.RecordOutcome(res.State)
	}
	return nil
}

func (e *Executor) release(ctx context.Context, ids []string) {
	for _, id := range ids {
		if err := e.deps.Store.Release(ctx, id); err != nil {
			logger.Errorf("释放交易 %s 失败: %v", id, err)
		}
	}
}

func (e *Executor) alert(ctx context.Context, t *domain.TradeRecord, rep *Report, log *logrus.Entry) {
	var text string
	switch rep.Result.State {
	case domain.StateAbortedInsufficientFunds:
		text = fmt.Sprintf("❌ 余额不足，已终止跟单\n交易员 %s\n市场 %s\n方向 %s\n错误 %s",
			t.Trader, t.Label(), t.Side, rep.Result.LastError)
	case domain.StatePartialRetryExhausted:
		text = fmt.Sprintf("⚠️ 重试 %d 次后放弃\n交易员 %s\n市场 %s\n方向 %s\n已成交 %s tokens\n错误 %s",
			rep.Result.RetryCount, t.Trader, t.Label(), t.Side, rep.Result.Filled.StringFixed(2), rep.Result.LastError)
	default:
		return
	}
	if err := e.notifier.Notify(ctx, text); err != nil {
		log.Warnf("发送告警失败: %v", err)
	}
}

func recordIDs(trades []*domain.TradeRecord) []string {
	ids := make([]string, 0, len(trades))
	for _, t := range trades {
		ids = append(ids, t.ID)
	}
	return ids
}

func short(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
