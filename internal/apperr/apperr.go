// Package apperr 定义跟单机器人的错误分类
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindConfiguration      Kind = "CONFIG_ERROR"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindTransientExecution Kind = "TRANSIENT_EXECUTION"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindNetwork            Kind = "NETWORK_ERROR"
	KindDatabase           Kind = "DATABASE_ERROR"
	KindInvariant          Kind = "INVARIANT_VIOLATION"
)

// Error 带类别的错误
// Operational=false 表示程序级错误（不变量被破坏），不应被吞掉
type Error struct {
	Kind        Kind
	Op          string
	Field       string
	Err         error
	Operational bool
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, &Error{Kind: k}) 按类别匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Configuration 配置错误，启动时致命
func Configuration(op string, err error) error {
	return &Error{Kind: KindConfiguration, Op: op, Err: err, Operational: true}
}

// Configurationf 格式化配置错误
func Configurationf(op, format string, args ...any) error {
	return Configuration(op, fmt.Errorf(format, args...))
}

// Validation 输入格式错误（例如分层倍数文本），解析时致命，不能静默回退默认值
func Validation(field string, err error) error {
	return &Error{Kind: KindValidation, Field: field, Err: err, Operational: true}
}

// Validationf 格式化校验错误
func Validationf(field, format string, args ...any) error {
	return Validation(field, fmt.Errorf(format, args...))
}

// Network 网络错误
func Network(op string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Err: err, Operational: true}
}

// Database 存储错误
func Database(op string, err error) error {
	return &Error{Kind: KindDatabase, Op: op, Err: err, Operational: true}
}

// Invariant 程序级不变量被破坏（非 operational）
func Invariant(op string, err error) error {
	return &Error{Kind: KindInvariant, Op: op, Err: err, Operational: false}
}

// KindOf 取错误类别，非 *Error 返回空
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind 判断错误链中是否有指定类别
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// IsOperational 预期内、可由外层流程恢复的错误
// 未分类的错误按 operational 处理
func IsOperational(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Operational
	}
	return err != nil
}

// Join 把多条校验问题合并成一个配置错误
func Join(op string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return Configuration(op, errors.Join(errs...))
}
