// Package sqlite 基于 modernc.org/sqlite 的 TradeStore（默认驱动，无需 CGO）
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/betbot/copybot/internal/domain"
	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store"
)

var _ ports.TradeStore = (*Store)(nil)

// Store SQLite 存储
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件并执行迁移
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS trade_records (
  id TEXT PRIMARY KEY,
  trader TEXT NOT NULL,
  type TEXT NOT NULL,
  transaction_hash TEXT NOT NULL DEFAULT '',
  ts INTEGER NOT NULL,
  condition_id TEXT NOT NULL,
  asset TEXT NOT NULL,
  side TEXT NOT NULL,
  size TEXT NOT NULL,
  usdc_size TEXT NOT NULL,
  price TEXT NOT NULL,
  slug TEXT NOT NULL DEFAULT '',
  event_slug TEXT NOT NULL DEFAULT '',
  outcome TEXT NOT NULL DEFAULT '',
  claimed INTEGER NOT NULL DEFAULT 0,
  executed INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  my_bought_size TEXT NOT NULL DEFAULT '0',
  result TEXT NOT NULL DEFAULT ''
);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_pending ON trade_records(executed, claimed, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_ledger ON trade_records(trader, asset, condition_id, side);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite 迁移失败: %w", err)
		}
	}
	return nil
}

const selectColumns = `id, trader, type, transaction_hash, ts, condition_id, asset, side,
  size, usdc_size, price, slug, event_slug, outcome, claimed, executed, retry_count, my_bought_size, result`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.TradeRecord, error) {
	var (
		r                         domain.TradeRecord
		typ, side, result         string
		ts                        int64
		size, usdc, price, bought string
		claimed, executed         int
	)
	err := row.Scan(&r.ID, &r.Trader, &typ, &r.TransactionHash, &ts, &r.ConditionID, &r.Asset, &side,
		&size, &usdc, &price, &r.Slug, &r.EventSlug, &r.Outcome, &claimed, &executed, &r.RetryCount, &bought, &result)
	if err != nil {
		return nil, err
	}
	r.Type = domain.ActivityType(typ)
	r.Side = domain.Side(side)
	r.Result = domain.ExecutionState(result)
	r.Timestamp = time.UnixMilli(ts).UTC()
	r.Claimed = claimed != 0
	r.Executed = executed != 0
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&r.Size, size}, {&r.USDCSize, usdc}, {&r.Price, price}, {&r.MyBoughtSize, bought}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("记录 %s 金额字段损坏: %w", r.ID, err)
		}
	}
	return &r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Store) Insert(ctx context.Context, r *domain.TradeRecord) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO trade_records (`+selectColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		r.ID, r.Trader, string(r.Type), r.TransactionHash, r.Timestamp.UnixMilli(), r.ConditionID, r.Asset, string(r.Side),
		r.Size.String(), r.USDCSize.String(), r.Price.String(), r.Slug, r.EventSlug, r.Outcome,
		boolInt(r.Claimed), boolInt(r.Executed), r.RetryCount, r.MyBoughtSize.String(), string(r.Result))
	if err != nil {
		return fmt.Errorf("写入交易记录失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrDuplicateKey
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.TradeRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM trade_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询交易记录失败: %w", err)
	}
	return r, nil
}

func (s *Store) PendingTrades(ctx context.Context, traders []string) ([]*domain.TradeRecord, error) {
	q := `SELECT ` + selectColumns + ` FROM trade_records
WHERE executed = 0 AND claimed = 0 AND type IN ('TRADE', 'MERGE')`
	args := make([]any, 0, len(traders))
	if len(traders) > 0 {
		q += ` AND trader IN (?` + strings.Repeat(`, ?`, len(traders)-1) + `)`
		for _, t := range traders {
			args = append(args, t)
		}
	}
	q += ` ORDER BY ts ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询待执行记录失败: %w", err)
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

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM trade_records WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trade_records SET claimed = 1 WHERE id = ? AND claimed = 0 AND executed = 0`, id)
	if err != nil {
		return false, fmt.Errorf("认领记录失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	ok, err := s.exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("认领记录失败: %w", err)
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (s *Store) Release(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE trade_records SET claimed = 0 WHERE id = ? AND executed = 0`, id)
	if err != nil {
		return fmt.Errorf("释放记录失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if ok, _ := s.exists(ctx, id); !ok {
			return store.ErrNotFound
		}
	}
	return nil
}

func (s *Store) RecordOutcome(ctx context.Context, id string, out domain.Outcome) error {
	var bought any
	if out.BoughtSize != nil {
		bought = out.BoughtSize.String()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE trade_records
SET claimed = 1, executed = 1, retry_count = ?, result = ?, my_bought_size = COALESCE(?, my_bought_size)
WHERE id = ?`, out.RetryCount, string(out.State), bought, id)
	if err != nil {
		return fmt.Errorf("写入执行结果失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkProcessed(ctx context.Context, ids []string, state domain.ExecutionState) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{string(state)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx, `UPDATE trade_records SET executed = 1, result = ?
WHERE executed = 0 AND claimed = 0 AND id IN (?`+strings.Repeat(`, ?`, len(ids)-1)+`)`, args...)
	if err != nil {
		return fmt.Errorf("标记记录已处理失败: %w", err)
	}
	return nil
}

func (s *Store) TrackedBuys(ctx context.Context, trader, asset, conditionID string) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, my_bought_size FROM trade_records
WHERE trader = ? AND asset = ? AND condition_id = ? AND side = 'BUY' AND executed = 1
ORDER BY ts ASC, rowid ASC`, trader, asset, conditionID)
	if err != nil {
		return nil, fmt.Errorf("查询已跟踪买入失败: %w", err)
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
			return nil, fmt.Errorf("记录 %s 账本字段损坏: %w", id, err)
		}
		// TEXT 列无法按数值比较，这里过滤
		if !v.IsPositive() {
			continue
		}
		out = append(out, domain.LedgerEntry{TradeID: id, MyBoughtSize: v})
	}
	return out, rows.Err()
}

func (s *Store) UpdateBoughtSizes(ctx context.Context, sizes map[string]decimal.Decimal) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for id, v := range sizes {
		res, err := tx.ExecContext(ctx, `UPDATE trade_records SET my_bought_size = ? WHERE id = ?`, v.String(), id)
		if err != nil {
			return fmt.Errorf("更新账本失败 %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("更新账本失败 %s: %w", id, store.ErrNotFound)
		}
	}
	return tx.Commit()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
