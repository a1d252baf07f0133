// Package health 启动前和运行中的组件自检
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/pkg/logger"
)

// Status 单项检查状态
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// LowBalanceUSD 低于该余额给出警告
var LowBalanceUSD = decimal.NewFromInt(10)

// Check 单项结果
type Check struct {
	Status  Status           `json:"status"`
	Message string           `json:"message"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// Result 汇总结果
type Result struct {
	Healthy   bool             `json:"healthy"`
	Checks    map[string]Check `json:"checks"`
	Timestamp int64            `json:"timestamp"`
}

// Pinger 可探活的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// BlockNumberer RPC 探活
type BlockNumberer interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Checker 检查存储、RPC、钱包余额和 data-api
// 任一依赖为 nil 时该项报 error
type Checker struct {
	Store    Pinger
	RPC      BlockNumberer
	Balances ports.BalanceProvider
	Wallet   string
	DataAPI  Pinger
	Timeout  time.Duration
	Now      func() time.Time
}

const (
	CheckDatabase = "database"
	CheckRPC      = "rpc"
	CheckBalance  = "balance"
	CheckAPI      = "polymarketApi"
)

// Run 执行全部检查
// healthy = database ok && rpc ok && balance 不是 error && api ok
func (c *Checker) Run(ctx context.Context) Result {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	checks := map[string]Check{
		CheckDatabase: c.database(ctx),
		CheckRPC:      c.rpc(ctx),
		CheckBalance:  c.balance(ctx),
		CheckAPI:      c.api(ctx),
	}
	healthy := checks[CheckDatabase].Status == StatusOK &&
		checks[CheckRPC].Status == StatusOK &&
		checks[CheckBalance].Status != StatusError &&
		checks[CheckAPI].Status == StatusOK
	return Result{Healthy: healthy, Checks: checks, Timestamp: now().UnixMilli()}
}

func (c *Checker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func failed(format string, args ...any) Check {
	return Check{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

func (c *Checker) database(ctx context.Context) Check {
	if c.Store == nil {
		return failed("Not checked")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.Store.Ping(ctx); err != nil {
		return failed("Connection failed: %v", err)
	}
	return Check{Status: StatusOK, Message: "Connected"}
}

func (c *Checker) rpc(ctx context.Context) Check {
	if c.RPC == nil {
		return failed("Not checked")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	n, err := c.RPC.BlockNumber(ctx)
	if err != nil {
		return failed("RPC check failed: %v", err)
	}
	if n == 0 {
		return failed("Invalid RPC response")
	}
	return Check{Status: StatusOK, Message: fmt.Sprintf("RPC endpoint responding (block %d)", n)}
}

func (c *Checker) balance(ctx context.Context) Check {
	if c.Balances == nil {
		return failed("Not checked")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	bal, err := c.Balances.AvailableBalance(ctx, c.Wallet)
	if err != nil {
		return failed("Balance check failed: %v", err)
	}
	switch {
	case !bal.IsPositive():
		return failed("Zero balance")
	case bal.LessThan(LowBalanceUSD):
		return Check{Status: StatusWarning, Message: fmt.Sprintf("Low balance: $%s", bal.StringFixed(2)), Balance: &bal}
	default:
		return Check{Status: StatusOK, Message: fmt.Sprintf("Balance: $%s", bal.StringFixed(2)), Balance: &bal}
	}
}

func (c *Checker) api(ctx context.Context) Check {
	if c.DataAPI == nil {
		return failed("Not checked")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := c.DataAPI.Ping(ctx); err != nil {
		return failed("API check failed: %v", err)
	}
	return Check{Status: StatusOK, Message: "API responding"}
}

func icon(s Status) string {
	switch s {
	case StatusOK:
		return "✅"
	case StatusWarning:
		return "⚠️"
	default:
		return "❌"
	}
}

// Log 打印检查结果
func Log(r Result) {
	logger.Separator()
	logger.Header("🏥 HEALTH CHECK")
	if r.Healthy {
		logger.Info("Overall Status: ✅ Healthy")
	} else {
		logger.Info("Overall Status: ❌ Unhealthy")
	}
	for _, item := range []struct{ key, label string }{
		{CheckDatabase, "Database"},
		{CheckRPC, "RPC"},
		{CheckBalance, "Balance"},
		{CheckAPI, "Polymarket API"},
	} {
		c := r.Checks[item.key]
		logger.Infof("%s: %s %s", item.label, icon(c.Status), c.Message)
	}
	logger.Separator()
}
