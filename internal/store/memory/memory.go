// Package memory 进程内 TradeStore，用于测试和 dry-run
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store"
)

var _ ports.TradeStore = (*Store)(nil)

// Store 内存存储，读写都返回副本
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.TradeRecord
	order   []string
	closed  bool
}

// New 创建空存储
func New() *Store {
	return &Store{records: make(map[string]*domain.TradeRecord)}
}

func clone(r *domain.TradeRecord) *domain.TradeRecord {
	cp := *r
	return &cp
}

func (s *Store) Insert(_ context.Context, rec *domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return store.ErrDuplicateKey
	}
	s.records[rec.ID] = clone(rec)
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(r), nil
}

func (s *Store) PendingTrades(_ context.Context, traders []string) ([]*domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(traders))
	for _, t := range traders {
		want[t] = true
	}
	var out []*domain.TradeRecord
	for _, id := range s.order {
		r := s.records[id]
		if r.Executed || r.Claimed {
			continue
		}
		if r.Type != domain.ActivityTrade && r.Type != domain.ActivityMerge {
			continue
		}
		if len(want) > 0 && !want[r.Trader] {
			continue
		}
		out = append(out, clone(r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) Claim(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if r.Executed || r.Claimed {
		return false, nil
	}
	r.Claimed = true
	return true, nil
}

func (s *Store) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	if !r.Executed {
		r.Claimed = false
	}
	return nil
}

func (s *Store) RecordOutcome(_ context.Context, id string, out domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Claimed = true
	r.Executed = true
	r.RetryCount = out.RetryCount
	r.Result = out.State
	if out.BoughtSize != nil {
		r.MyBoughtSize = *out.BoughtSize
	}
	return nil
}

func (s *Store) MarkProcessed(_ context.Context, ids []string, state domain.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		r, ok := s.records[id]
		if !ok || r.Executed || r.Claimed {
			continue
		}
		r.Executed = true
		r.Result = state
	}
	return nil
}

func (s *Store) TrackedBuys(_ context.Context, trader, asset, conditionID string) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, id := range s.order {
		r := s.records[id]
		if r.Trader != trader || r.Asset != asset || r.ConditionID != conditionID {
			continue
		}
		if r.Side != domain.SideBuy || !r.Executed || !r.MyBoughtSize.IsPositive() {
			continue
		}
		out = append(out, domain.LedgerEntry{TradeID: r.ID, MyBoughtSize: r.MyBoughtSize})
	}
	return out, nil
}

func (s *Store) UpdateBoughtSizes(_ context.Context, sizes map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range sizes {
		if _, ok := s.records[id]; !ok {
			return store.ErrNotFound
		}
	}
	for id, v := range sizes {
		s.records[id].MyBoughtSize = v
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
