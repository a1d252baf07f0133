package shutdown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/betbot/copybot/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type entry struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器
// 回调按注册的逆序串行执行：先停止产生新工作的组件，最后关闭存储
type Manager struct {
	callbacks []entry
	mu        sync.Mutex
	done      bool
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册关闭回调
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, entry{name: name, handler: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用），只执行一次
// ctx 应该是一个带超时的 context；超时后剩余回调不再执行
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		m.mu.Unlock()
		return nil
	}
	m.done = true
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}

	logger.Infof("开始优雅关闭，共 %d 个回调", len(callbacks))

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		cb := callbacks[i]
		if err := ctx.Err(); err != nil {
			logger.Warnf("关闭超时，跳过 %s: %v", cb.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
			continue
		}
		if err := cb.handler(ctx); err != nil {
			logger.Errorf("关闭 %s 失败: %v", cb.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cb.name, err))
			continue
		}
		logger.Debugf("已关闭 %s", cb.name)
	}

	if len(errs) == 0 {
		logger.Info("所有关闭回调已完成")
	}
	return errors.Join(errs...)
}
