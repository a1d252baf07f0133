package clob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
)

// InsufficientFundsMessage 模拟交易所余额不足时的拒单信息
const InsufficientFundsMessage = "not enough balance / allowance"

var (
	_ ports.ExecutionTransport = (*PaperExchange)(nil)
	_ ports.BalanceProvider    = (*PaperExchange)(nil)
	_ ports.PositionProvider   = (*PaperExchange)(nil)
)

// PaperFill 一笔模拟成交
type PaperFill struct {
	OrderID string          `json:"orderId"`
	Side    domain.Side     `json:"side"`
	Asset   string          `json:"asset"`
	Tokens  decimal.Decimal `json:"tokens"`
	USDC    decimal.Decimal `json:"usdc"`
	Price   decimal.Decimal `json:"price"`
	At      time.Time       `json:"at"`
}

type paperPosition struct {
	conditionID string
	size        decimal.Decimal
	cost        decimal.Decimal
}

// PaperExchange dry-run 用的模拟交易所：读真实订单簿，在本地账本上成交
// 同时充当自己钱包的余额和持仓来源
type PaperExchange struct {
	books ports.OrderBookFetcher

	mu        sync.Mutex
	balance   decimal.Decimal
	positions map[string]*paperPosition // asset -> position
	fills     []PaperFill
}

// NewPaperExchange 以初始 USDC 余额创建
func NewPaperExchange(books ports.OrderBookFetcher, startingBalance decimal.Decimal) *PaperExchange {
	return &PaperExchange{
		books:     books,
		balance:   startingBalance,
		positions: make(map[string]*paperPosition),
	}
}

// OrderBook 透传真实订单簿
func (p *PaperExchange) OrderBook(ctx context.Context, asset string) (*domain.OrderBook, error) {
	return p.books.OrderBook(ctx, asset)
}

// SubmitOrder 以请求价格全部成交，资金或持仓不足时按交易所的方式拒单
func (p *PaperExchange) SubmitOrder(_ context.Context, req domain.OrderRequest) (*domain.OrderResult, error) {
	if !req.Price.IsPositive() || !req.Amount.IsPositive() {
		return &domain.OrderResult{Success: false, Error: "invalid amount or price"}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fill := PaperFill{OrderID: "paper-" + uuid.NewString(), Side: req.Side, Asset: req.Asset, Price: req.Price, At: time.Now()}
	pos := p.positions[req.Asset]

	switch req.Side {
	case domain.SideBuy:
		if req.Amount.GreaterThan(p.balance) {
			return &domain.OrderResult{Success: false, Error: InsufficientFundsMessage}, nil
		}
		if pos == nil {
			pos = &paperPosition{conditionID: req.ConditionID}
			p.positions[req.Asset] = pos
		}
		fill.USDC = req.Amount
		fill.Tokens = req.Amount.Div(req.Price)
		p.balance = p.balance.Sub(fill.USDC)
		pos.size = pos.size.Add(fill.Tokens)
		pos.cost = pos.cost.Add(fill.USDC)
	case domain.SideSell:
		if pos == nil || req.Amount.GreaterThan(pos.size) {
			return &domain.OrderResult{Success: false, Error: InsufficientFundsMessage}, nil
		}
		fill.Tokens = req.Amount
		fill.USDC = req.Amount.Mul(req.Price)
		avg := pos.cost.Div(pos.size)
		pos.size = pos.size.Sub(fill.Tokens)
		pos.cost = avg.Mul(pos.size)
		p.balance = p.balance.Add(fill.USDC)
		if !pos.size.IsPositive() {
			delete(p.positions, req.Asset)
		}
	default:
		return nil, fmt.Errorf("未知方向: %s", req.Side)
	}

	p.fills = append(p.fills, fill)
	return &domain.OrderResult{Success: true, OrderID: fill.OrderID}, nil
}

// AvailableBalance 模拟钱包余额
func (p *PaperExchange) AvailableBalance(context.Context, string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// Position 模拟钱包在某个市场的持仓
func (p *PaperExchange) Position(_ context.Context, _ string, conditionID string) (*domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for asset, pos := range p.positions {
		if !strings.EqualFold(pos.conditionID, conditionID) {
			continue
		}
		avg := decimal.Zero
		if pos.size.IsPositive() {
			avg = pos.cost.Div(pos.size)
		}
		return &domain.Position{
			Asset:       asset,
			ConditionID: pos.conditionID,
			Size:        pos.size,
			AvgPrice:    avg,
		}, nil
	}
	return nil, nil
}

// Seed 直接放入一笔持仓（用于从真实钱包同步或测试）
func (p *PaperExchange) Seed(asset, conditionID string, size, avgPrice decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[asset] = &paperPosition{conditionID: conditionID, size: size, cost: size.Mul(avgPrice)}
}

// Fills 已发生的模拟成交
func (p *PaperExchange) Fills() []PaperFill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PaperFill(nil), p.fills...)
}
