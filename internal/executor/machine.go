package executor

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/ports"
)

// MachineConfig 状态机参数
type MachineConfig struct {
	RetryLimit        int
	SlippageTolerance decimal.Decimal // BUY 时允许最优卖价高出交易员成交价的绝对值
	MinOrderUSD       decimal.Decimal
	MinOrderTokens    decimal.Decimal
}

// DefaultMachineConfig 默认参数
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		RetryLimit:        3,
		SlippageTolerance: decimal.RequireFromString("0.05"),
		MinOrderUSD:       decimal.NewFromInt(1),
		MinOrderTokens:    decimal.NewFromInt(1),
	}
}

// Result 一次执行的结果
type Result struct {
	Condition  domain.Condition
	State      domain.ExecutionState
	Filled     decimal.Decimal // 成交的 token 数
	Spent      decimal.Decimal // BUY 花费的 USDC，SELL/MERGE 收回的 USDC
	Remaining  decimal.Decimal // 未完成部分（BUY 为 USDC，SELL/MERGE 为 token）
	RetryCount int             // 结束时的连续失败次数
	Orders     int             // 成功的订单数
	LastError  string
	Ran        bool // 是否进入了下单循环
}

// Machine 单笔交易的 FOK 下单状态机
// 每轮读最新订单簿，吃最优一档，直到剩余量低于最小单、没有流动性、滑点超限或失败次数耗尽
type Machine struct {
	cfg       MachineConfig
	transport ports.ExecutionTransport
}

// NewMachine 创建状态机
func NewMachine(cfg MachineConfig, transport ports.ExecutionTransport) *Machine {
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 1
	}
	return &Machine{cfg: cfg, transport: transport}
}

// Config 当前参数
func (m *Machine) Config() MachineConfig { return m.cfg }

// Buy 以 USDC 金额买入
func (m *Machine) Buy(ctx context.Context, trade *domain.TradeRecord, usdc decimal.Decimal, log *logrus.Entry) Result {
	return m.fill(ctx, trade, domain.ConditionBuy, usdc, log)
}

// Sell 卖出 token 数量
func (m *Machine) Sell(ctx context.Context, trade *domain.TradeRecord, tokens decimal.Decimal, log *logrus.Entry) Result {
	return m.fill(ctx, trade, domain.ConditionSell, tokens, log)
}

// Merge 交易员合并持仓时，把自己的整个持仓卖回给买盘
func (m *Machine) Merge(ctx context.Context, trade *domain.TradeRecord, tokens decimal.Decimal, log *logrus.Entry) Result {
	return m.fill(ctx, trade, domain.ConditionMerge, tokens, log)
}

func (m *Machine) fill(ctx context.Context, trade *domain.TradeRecord, cond domain.Condition, amount decimal.Decimal, log *logrus.Entry) Result {
	buy := cond == domain.ConditionBuy
	side := domain.SideSell
	minimum := m.cfg.MinOrderTokens
	if buy {
		side = domain.SideBuy
		minimum = m.cfg.MinOrderUSD
	}

	res := Result{
		Condition: cond,
		State:     domain.StateFilling,
		Filled:    decimal.Zero,
		Spent:     decimal.Zero,
		Remaining: amount,
		Ran:       true,
	}
	aborted := false

	for res.Remaining.IsPositive() && res.RetryCount < m.cfg.RetryLimit {
		book, err := m.transport.OrderBook(ctx, trade.Asset)
		if err != nil {
			metrics.BookFetchErrors.Add(1)
			res.RetryCount++
			res.LastError = err.Error()
			log.Warnf("获取订单簿失败 (%d/%d): %v", res.RetryCount, m.cfg.RetryLimit, err)
			continue
		}

		var level domain.BookLevel
		var ok bool
		if buy {
			level, ok = book.BestAsk()
		} else {
			level, ok = book.BestBid()
		}
		if !ok || !level.Price.IsPositive() {
			log.Warnf("订单簿 %s 侧没有可用档位", side)
			res.State = domain.StatePartialNoLiquidity
			break
		}

		if buy && level.Price.Sub(m.cfg.SlippageTolerance).GreaterThan(trade.Price) {
			log.Warnf("滑点过大: 最优卖价 %s，交易员成交价 %s，容忍 %s", level.Price, trade.Price, m.cfg.SlippageTolerance)
			res.State = domain.StateSkippedSlippage
			break
		}

		if res.Remaining.LessThan(minimum) {
			log.Infof("剩余 %s 低于最小下单量 %s，结束", res.Remaining.StringFixed(4), minimum)
			res.State = domain.StateCompleted
			break
		}

		var chunk decimal.Decimal
		if buy {
			chunk = decimal.Min(res.Remaining, level.Size.Mul(level.Price))
		} else {
			chunk = decimal.Min(res.Remaining, level.Size)
			if chunk.LessThan(m.cfg.MinOrderTokens) {
				log.Infof("最优买档只有 %s 个 token，低于最小下单量，结束", chunk)
				res.State = domain.StateCompleted
				break
			}
		}

		req := domain.OrderRequest{Side: side, Asset: trade.Asset, ConditionID: trade.ConditionID, Amount: chunk, Price: level.Price}
		metrics.OrdersSubmitted.Add(1)
		out, err := m.transport.SubmitOrder(ctx, req)
		if err == nil && out != nil && out.Success {
			metrics.OrdersFilled.Add(1)
			res.RetryCount = 0
			res.Orders++
			if buy {
				tokens := chunk.Div(level.Price)
				res.Filled = res.Filled.Add(tokens)
				res.Spent = res.Spent.Add(chunk)
				log.Infof("✅ 买入 $%s @ %s (%s tokens)", chunk.StringFixed(2), level.Price, tokens.StringFixed(2))
			} else {
				res.Filled = res.Filled.Add(chunk)
				res.Spent = res.Spent.Add(chunk.Mul(level.Price))
				log.Infof("✅ 卖出 %s tokens @ %s", chunk.StringFixed(2), level.Price)
			}
			res.Remaining = res.Remaining.Sub(chunk)
			continue
		}

		metrics.OrdersFailed.Add(1)
		msg := failureMessage(out, err)
		res.LastError = msg
		if ClassifyOrderError(msg) == FailureInsufficientFunds {
			log.Errorf("❌ 余额或授权不足，终止: %s", msg)
			aborted = true
			break
		}
		res.RetryCount++
		log.Warnf("下单失败 (%d/%d): %s", res.RetryCount, m.cfg.RetryLimit, msg)
	}

	if res.State == domain.StateFilling {
		switch {
		case aborted:
			res.State = domain.StateAbortedInsufficientFunds
		case res.Remaining.IsPositive() && res.RetryCount >= m.cfg.RetryLimit:
			res.State = domain.StatePartialRetryExhausted
		default:
			res.State = domain.StateCompleted
		}
	}
	return res
}

// skipped 下单循环之前就结束的结果
func skipped(cond domain.Condition, state domain.ExecutionState) Result {
	return Result{Condition: cond, State: state, Filled: decimal.Zero, Spent: decimal.Zero, Remaining: decimal.Zero}
}
