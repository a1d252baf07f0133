package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/aggregator"
	"github.com/betbot/copybot/internal/apperr"
	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/metrics"
	"github.com/betbot/copybot/internal/store"
	"github.com/betbot/copybot/pkg/logger"
	"github.com/betbot/copybot/pkg/persistence"
)

// Stats 执行统计
type Stats struct {
	StartedAt     time.Time                     `json:"startedAt"`
	Runs          int                           `json:"runs"`
	Records       int                           `json:"records"`
	ByState       map[domain.ExecutionState]int `json:"byState"`
	Orders        int                           `json:"orders"`
	USDCSpent     decimal.Decimal               `json:"usdcSpent"`
	USDCReceived  decimal.Decimal               `json:"usdcReceived"`
	TokensBought  decimal.Decimal               `json:"tokensBought"`
	TokensSold    decimal.Decimal               `json:"tokensSold"`
	LastRunID     string                        `json:"lastRunId,omitempty"`
	LastTradeID   string                        `json:"lastTradeId,omitempty"`
	LastState     domain.ExecutionState         `json:"lastState,omitempty"`
	LastExecution time.Time                     `json:"lastExecution,omitempty"`
}

func newStats(now time.Time) Stats {
	return Stats{StartedAt: now, ByState: make(map[domain.ExecutionState]int)}
}

func (e *Executor) observe(rep *Report) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	s := &e.stats
	if s.ByState == nil {
		s.ByState = make(map[domain.ExecutionState]int)
	}
	s.Runs++
	s.Records += len(rep.TradeIDs)
	s.ByState[rep.Result.State] += len(rep.TradeIDs)
	s.Orders += rep.Result.Orders
	if rep.Result.Condition == domain.ConditionBuy {
		s.USDCSpent = s.USDCSpent.Add(rep.Result.Spent)
		s.TokensBought = s.TokensBought.Add(rep.Result.Filled)
	} else {
		s.USDCReceived = s.USDCReceived.Add(rep.Result.Spent)
		s.TokensSold = s.TokensSold.Add(rep.Result.Filled)
	}
	s.LastRunID = rep.RunID
	s.LastTradeID = rep.TradeIDs[0]
	s.LastState = rep.Result.State
	s.LastExecution = e.now()
}

// Stats 返回统计副本
func (e *Executor) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	cp := e.stats
	cp.ByState = make(map[domain.ExecutionState]int, len(e.stats.ByState))
	for k, v := range e.stats.ByState {
		cp.ByState[k] = v
	}
	return cp
}

// snapshot 重启后需要恢复的状态
type snapshot struct {
	Buffer []aggregator.Entry `persistence:"aggregation_buffer"`
	Stats  Stats              `persistence:"executor_stats"`
}

// SaveSnapshot 保存聚合缓冲区和统计
func (e *Executor) SaveSnapshot(svc persistence.Service, id string) error {
	snap := snapshot{Stats: e.Stats()}
	if e.buffer != nil {
		snap.Buffer = e.buffer.Snapshot()
	}
	if err := persistence.SaveFields(&snap, id, svc); err != nil {
		return err
	}
	metrics.SnapshotSaves.Add(1)
	return nil
}

// RestoreSnapshot 恢复聚合缓冲区和统计；没有快照时保持初始状态
// 已经执行过的缓冲成员会被丢弃
func (e *Executor) RestoreSnapshot(ctx context.Context, svc persistence.Service, id string) error {
	snap := snapshot{Stats: e.Stats()}
	if err := persistence.LoadFields(&snap, id, svc); err != nil {
		return err
	}
	metrics.SnapshotLoads.Add(1)

	e.statsMu.Lock()
	started := e.stats.StartedAt
	e.stats = snap.Stats
	e.stats.StartedAt = started
	e.statsMu.Unlock()

	if e.buffer == nil || len(snap.Buffer) == 0 {
		return nil
	}
	return e.restoreBuffer(ctx, snap.Buffer)
}

func (e *Executor) restoreBuffer(ctx context.Context, entries []aggregator.Entry) error {
	kept := make([]aggregator.Entry, 0, len(entries))
	for _, entry := range entries {
		var pending []*domain.TradeRecord
		for _, t := range entry.Trades {
			cur, err := e.deps.Store.Get(ctx, t.ID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return apperr.Database("恢复聚合缓冲区", err)
			}
			if !cur.IsTerminal() {
				pending = append(pending, cur)
			}
		}
		if len(pending) == 0 {
			continue
		}
		entry.Trades = pending
		kept = append(kept, entry)
	}
	e.buffer.Restore(kept)
	if len(kept) > 0 {
		logger.Infof("已恢复 %d 个聚合项", len(kept))
	}
	return nil
}
