package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store"
)

var _ ports.TradeStore = (*TradeStore)(nil)

// TradeStore implements ports.TradeStore on PostgreSQL.
// NUMERIC columns travel as text so decimals never pass through float64.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore 使用已迁移的连接池
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Open 连接、迁移并返回存储
func Open(ctx context.Context, dsn string) (*TradeStore, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewTradeStore(pool), nil
}

const selectColumns = `id, trader, type, transaction_hash, ts, condition_id, asset, side,
  size::text, usdc_size::text, price::text, slug, event_slug, outcome,
  claimed, executed, retry_count, my_bought_size::text, result`

func scanRecord(row pgx.Row) (*domain.TradeRecord, error) {
	var (
		r                         domain.TradeRecord
		typ, side, result         string
		size, usdc, price, bought string
	)
	err := row.Scan(&r.ID, &r.Trader, &typ, &r.TransactionHash, &r.Timestamp, &r.ConditionID, &r.Asset, &side,
		&size, &usdc, &price, &r.Slug, &r.EventSlug, &r.Outcome, &r.Claimed, &r.Executed, &r.RetryCount, &bought, &result)
	if err != nil {
		return nil, err
	}
	r.Type = domain.ActivityType(typ)
	r.Side = domain.Side(side)
	r.Result = domain.ExecutionState(result)
	r.Timestamp = r.Timestamp.UTC()
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&r.Size, size}, {&r.USDCSize, usdc}, {&r.Price, price}, {&r.MyBoughtSize, bought}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("decode numeric for %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

// Insert adds a new trade. Returns store.ErrDuplicateKey if the id exists.
func (s *TradeStore) Insert(ctx context.Context, r *domain.TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_records (
			id, trader, type, transaction_hash, ts, condition_id, asset, side,
			size, usdc_size, price, slug, event_slug, outcome,
			claimed, executed, retry_count, my_bought_size, result
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9::text::numeric, $10::text::numeric, $11::text::numeric, $12, $13, $14,
			$15, $16, $17, $18::text::numeric, $19
		)`,
		r.ID, r.Trader, string(r.Type), r.TransactionHash, r.Timestamp, r.ConditionID, r.Asset, string(r.Side),
		r.Size.String(), r.USDCSize.String(), r.Price.String(), r.Slug, r.EventSlug, r.Outcome,
		r.Claimed, r.Executed, r.RetryCount, r.MyBoughtSize.String(), string(r.Result),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade record: %w", err)
	}
	return nil
}

func (s *TradeStore) Get(ctx context.Context, id string) (*domain.TradeRecord, error) {
	r, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM trade_records WHERE id = $1`, id))
	if isNotFoundError(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trade record: %w", err)
	}
	return r, nil
}

func (s *TradeStore) PendingTrades(ctx context.Context, traders []string) ([]*domain.TradeRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM trade_records
		WHERE NOT executed AND NOT claimed AND type IN ('TRADE', 'MERGE')`
	var args []any
	if len(traders) > 0 {
		q += ` AND trader = ANY($1)`
		args = append(args, traders)
	}
	q += ` ORDER BY ts ASC, inserted_at ASC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending trades: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *TradeStore) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM trade_records WHERE id = $1)`, id).Scan(&ok)
	return ok, err
}

// Claim flips claimed in a single conditional UPDATE, so two instances never both win.
func (s *TradeStore) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trade_records SET claimed = TRUE WHERE id = $1 AND NOT claimed AND NOT executed`, id)
	if err != nil {
		return false, fmt.Errorf("claim trade record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("claim trade record: %w", err)
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (s *TradeStore) Release(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE trade_records SET claimed = FALSE WHERE id = $1 AND NOT executed`, id)
	if err != nil {
		return fmt.Errorf("release trade record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if ok, _ := s.exists(ctx, id); !ok {
			return store.ErrNotFound
		}
	}
	return nil
}

func (s *TradeStore) RecordOutcome(ctx context.Context, id string, out domain.Outcome) error {
	var bought *string
	if out.BoughtSize != nil {
		v := out.BoughtSize.String()
		bought = &v
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE trade_records
		SET claimed = TRUE, executed = TRUE, retry_count = $2, result = $3,
		    my_bought_size = COALESCE($4::text::numeric, my_bought_size)
		WHERE id = $1`, id, out.RetryCount, string(out.State), bought)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *TradeStore) MarkProcessed(ctx context.Context, ids []string, state domain.ExecutionState) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_records SET executed = TRUE, result = $1
		WHERE id = ANY($2) AND NOT executed AND NOT claimed`, string(state), ids)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (s *TradeStore) TrackedBuys(ctx context.Context, trader, asset, conditionID string) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, my_bought_size::text FROM trade_records
		WHERE trader = $1 AND asset = $2 AND condition_id = $3
		  AND side = 'BUY' AND executed AND my_bought_size > 0
		ORDER BY ts ASC, inserted_at ASC`, trader, asset, conditionID)
	if err != nil {
		return nil, fmt.Errorf("query tracked buys: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode my_bought_size for %s: %w", id, err)
		}
		out = append(out, domain.LedgerEntry{TradeID: id, MyBoughtSize: v})
	}
	return out, rows.Err()
}

// UpdateBoughtSizes rewrites all entries atomically. Fails the whole batch on an unknown id.
func (s *TradeStore) UpdateBoughtSizes(ctx context.Context, sizes map[string]decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for id, v := range sizes {
		tag, err := tx.Exec(ctx, `UPDATE trade_records SET my_bought_size = $2::text::numeric WHERE id = $1`, id, v.String())
		if err != nil {
			return fmt.Errorf("update my_bought_size for %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("update my_bought_size for %s: %w", id, store.ErrNotFound)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *TradeStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *TradeStore) Close() error {
	s.pool.Close()
	return nil
}
