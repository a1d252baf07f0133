package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/domain"
)

// Small capability interfaces between the executor core and its collaborators.

// OrderBookFetcher returns the current book for a token.
type OrderBookFetcher interface {
	OrderBook(ctx context.Context, asset string) (*domain.OrderBook, error)
}

// OrderSubmitter signs and posts one FOK order.
// A rejected order is reported through OrderResult; err is reserved for transport failures.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResult, error)
}

// ExecutionTransport is what the state machine drives.
type ExecutionTransport interface {
	OrderBookFetcher
	OrderSubmitter
}

// BalanceProvider returns spendable USDC for a wallet.
type BalanceProvider interface {
	AvailableBalance(ctx context.Context, wallet string) (decimal.Decimal, error)
}

// PositionProvider returns the wallet's position in a market, nil when absent.
type PositionProvider interface {
	Position(ctx context.Context, wallet, conditionID string) (*domain.Position, error)
}

// TradeStore is the persistence collaborator. Implementations live in internal/store.
type TradeStore interface {
	// Insert stores a record written by the monitor.
	Insert(ctx context.Context, rec *domain.TradeRecord) error
	Get(ctx context.Context, id string) (*domain.TradeRecord, error)
	// PendingTrades returns TRADE/MERGE records that are neither executed nor claimed, oldest first.
	PendingTrades(ctx context.Context, traders []string) ([]*domain.TradeRecord, error)
	// Claim atomically marks a pending record as in progress. false means someone else owns it.
	Claim(ctx context.Context, id string) (bool, error)
	// Release returns a claimed record to pending. Only used when no order was sent.
	Release(ctx context.Context, id string) error
	// RecordOutcome writes the terminal outcome of one execution.
	RecordOutcome(ctx context.Context, id string, out domain.Outcome) error
	// MarkProcessed closes records that were never executed (aggregation leftovers).
	MarkProcessed(ctx context.Context, ids []string, state domain.ExecutionState) error
	// TrackedBuys lists executed BUY records with MyBoughtSize > 0 for the same trader, asset and market.
	TrackedBuys(ctx context.Context, trader, asset, conditionID string) ([]domain.LedgerEntry, error)
	// UpdateBoughtSizes rewrites ledger values in one transaction.
	UpdateBoughtSizes(ctx context.Context, sizes map[string]decimal.Decimal) error
	Ping(ctx context.Context) error
	Close() error
}

// Notifier receives operator alerts.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
