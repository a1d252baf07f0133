// Package aggregator 把同一交易员、同一市场、同方向的小额买单攒成一笔
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/metrics"
)

var log = logrus.WithField("component", "aggregator")

// Key 聚合键
type Key struct {
	Trader      string      `json:"trader"`
	ConditionID string      `json:"conditionId"`
	Asset       string      `json:"asset"`
	Side        domain.Side `json:"side"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Trader, k.ConditionID, k.Asset, k.Side)
}

// KeyOf 取记录的聚合键
func KeyOf(t *domain.TradeRecord) Key {
	return Key{Trader: t.Trader, ConditionID: t.ConditionID, Asset: t.Asset, Side: t.Side}
}

// Entry 一个聚合键下累积的交易
type Entry struct {
	Key          Key                   `json:"key"`
	Trades       []*domain.TradeRecord `json:"trades"`
	TotalUSDC    decimal.Decimal       `json:"totalUsdcSize"`
	AveragePrice decimal.Decimal       `json:"averagePrice"`
	FirstTradeAt time.Time             `json:"firstTradeTime"`
	LastTradeAt  time.Time             `json:"lastTradeTime"`
}

func (e *Entry) has(id string) bool {
	for _, t := range e.Trades {
		if t.ID == id {
			return true
		}
	}
	return false
}

// recompute 成交额加权平均价 Σ(usdc×price)/Σusdc
func (e *Entry) recompute() {
	total := decimal.Zero
	value := decimal.Zero
	for _, t := range e.Trades {
		total = total.Add(t.USDCSize)
		value = value.Add(t.USDCSize.Mul(t.Price))
	}
	e.TotalUSDC = total
	if total.IsPositive() {
		e.AveragePrice = value.Div(total)
	} else {
		e.AveragePrice = decimal.Zero
	}
}

// TradeIDs 成员记录 ID
func (e *Entry) TradeIDs() []string {
	ids := make([]string, 0, len(e.Trades))
	for _, t := range e.Trades {
		ids = append(ids, t.ID)
	}
	return ids
}

// Batch 到期且达到最低金额的一组交易
type Batch struct {
	Entry
}

// Synthetic 以第一笔为模板，金额换成合计、价格换成加权均价
func (b *Batch) Synthetic() *domain.TradeRecord {
	tpl := *b.Trades[0]
	tpl.USDCSize = b.TotalUSDC
	tpl.Price = b.AveragePrice
	tpl.Side = b.Key.Side
	return &tpl
}

// Marker 把到期但金额不足的成员标记为已处理
type Marker interface {
	MarkProcessed(ctx context.Context, ids []string, state domain.ExecutionState) error
}

// Config 聚合参数
type Config struct {
	Window   time.Duration
	MinTotal decimal.Decimal
}

// Buffer 聚合缓冲区，Admit/DrainReady 互斥
type Buffer struct {
	cfg    Config
	marker Marker

	mu      sync.Mutex
	entries map[Key]*Entry
}

// NewBuffer 创建缓冲区
func NewBuffer(cfg Config, marker Marker) *Buffer {
	return &Buffer{
		cfg:     cfg,
		marker:  marker,
		entries: make(map[Key]*Entry),
	}
}

// Eligible 只有低于最低金额的 BUY 才进缓冲区，其余立即执行
func (b *Buffer) Eligible(t *domain.TradeRecord) bool {
	return t.Side == domain.SideBuy && t.USDCSize.LessThan(b.cfg.MinTotal)
}

// Admit 把一笔交易放进对应的聚合项
// 同一条记录重复放入时忽略，返回 false
func (b *Buffer) Admit(t *domain.TradeRecord, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := KeyOf(t)
	if e, ok := b.entries[key]; ok {
		if e.has(t.ID) {
			return false
		}
		e.Trades = append(e.Trades, t)
		e.recompute()
		e.LastTradeAt = now
		return true
	}

	b.entries[key] = &Entry{
		Key:          key,
		Trades:       []*domain.TradeRecord{t},
		TotalUSDC:    t.USDCSize,
		AveragePrice: t.Price,
		FirstTradeAt: now,
		LastTradeAt:  now,
	}
	return true
}

// Contains 记录是否已在缓冲区
func (b *Buffer) Contains(t *domain.TradeRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[KeyOf(t)]
	return ok && e.has(t.ID)
}

// DrainReady 取出所有窗口已到期的聚合项
// 到期项一定会被移除；合计达到最低金额的返回执行，否则成员直接标记为跳过
func (b *Buffer) DrainReady(ctx context.Context, now time.Time) ([]*Batch, error) {
	b.mu.Lock()
	var expired []*Entry
	for key, e := range b.entries {
		if now.Sub(e.FirstTradeAt) >= b.cfg.Window {
			expired = append(expired, e)
			delete(b.entries, key)
		}
	}
	b.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].FirstTradeAt.Before(expired[j].FirstTradeAt) })

	var ready []*Batch
	var firstErr error
	for _, e := range expired {
		if e.TotalUSDC.GreaterThanOrEqual(b.cfg.MinTotal) {
			ready = append(ready, &Batch{Entry: *e})
			continue
		}
		metrics.AggregationsSkipped.Add(1)
		log.Infof("聚合 %s: %d 笔合计 $%s 低于最低 $%s，跳过",
			e.Key, len(e.Trades), e.TotalUSDC.StringFixed(2), b.cfg.MinTotal.StringFixed(2))
		if b.marker == nil {
			continue
		}
		if err := b.marker.MarkProcessed(ctx, e.TradeIDs(), domain.StateSkippedBelowMinimum); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("标记聚合跳过失败 %s: %w", e.Key, err)
		}
	}
	return ready, firstErr
}

// Len 当前聚合项数量
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Snapshot 复制当前所有聚合项（用于持久化和状态接口）
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		cp := *e
		cp.Trades = append([]*domain.TradeRecord(nil), e.Trades...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstTradeAt.Before(out[j].FirstTradeAt) })
	return out
}

// Restore 用快照恢复聚合项，保留原来的窗口起点
func (b *Buffer) Restore(entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range entries {
		e := entries[i]
		if len(e.Trades) == 0 {
			continue
		}
		e.recompute()
		b.entries[e.Key] = &e
	}
}

// NewBatch 用给定成员重新组一个批次（部分成员被别处认领时使用）
func NewBatch(key Key, trades []*domain.TradeRecord, firstAt time.Time) *Batch {
	b := &Batch{Entry: Entry{Key: key, Trades: trades, FirstTradeAt: firstAt, LastTradeAt: firstAt}}
	b.recompute()
	return b
}
