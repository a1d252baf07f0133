// Package store 交易记录存储的公共错误与约定
// 具体实现见 memory / sqlite / postgres 子包，均实现 ports.TradeStore
package store

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("trade record not found")
	// ErrDuplicateKey 记录 ID 已存在
	ErrDuplicateKey = errors.New("trade record already exists")
)

// Drivers 支持的存储驱动
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)
