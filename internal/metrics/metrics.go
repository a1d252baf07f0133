package metrics

import (
	"expvar"

	"github.com/betbot/copybot/internal/domain"
)

var (
	TradesProcessed         = expvar.NewInt("trades_processed")
	TradesBuffered          = expvar.NewInt("trades_buffered")
	AggregationsExecuted    = expvar.NewInt("aggregations_executed")
	AggregationsSkipped     = expvar.NewInt("aggregations_skipped")
	OrdersSubmitted         = expvar.NewInt("orders_submitted")
	OrdersFilled            = expvar.NewInt("orders_filled")
	OrdersFailed            = expvar.NewInt("orders_failed")
	AbortsInsufficientFunds = expvar.NewInt("aborts_insufficient_funds")
	BookFetchErrors         = expvar.NewInt("book_fetch_errors")
	SnapshotSaves           = expvar.NewInt("snapshot_saves")
	SnapshotLoads           = expvar.NewInt("snapshot_loads")

	// Outcomes 按终态计数，key 为 ExecutionState
	Outcomes = expvar.NewMap("trade_outcomes")
)

// RecordOutcome 记录一次终态
func RecordOutcome(state domain.ExecutionState) {
	TradesProcessed.Add(1)
	Outcomes.Add(string(state), 1)
	if state == domain.StateAbortedInsufficientFunds {
		AbortsInsufficientFunds.Add(1)
	}
}
