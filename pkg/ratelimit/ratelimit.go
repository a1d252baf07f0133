package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 速率限制器
type Limiter interface {
	Wait(ctx context.Context) error
	Allow() bool
	Remaining() int
}

// Endpoint 限流分组
type Endpoint string

const (
	ClobBook      Endpoint = "clob:book:get"
	ClobOrderPost Endpoint = "clob:order:post"
	DataPositions Endpoint = "data:positions:get"
	DataGeneral   Endpoint = "data:general"
)

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 窗口内允许的请求数
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 窗口内请求时间戳（升序）
	now        func() time.Time
	mu         sync.Mutex
}

// NewSlidingWindow 创建滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{limit: limit, windowSize: windowSize, now: time.Now}
}

// prune 丢弃窗口外的请求，调用方持锁
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	sw.requests = sw.requests[i:]
}

// Allow 检查是否允许请求，允许时记一次
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.prune(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// Wait 阻塞直到允许请求或 ctx 结束
func (sw *SlidingWindow) Wait(ctx context.Context) error {
	for {
		if sw.Allow() {
			return nil
		}

		sw.mu.Lock()
		waitTime := 100 * time.Millisecond
		if len(sw.requests) > 0 {
			if d := sw.windowSize - sw.now().Sub(sw.requests[0]); d > 0 {
				waitTime = d
			}
		}
		sw.mu.Unlock()

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining 窗口内剩余请求数
func (sw *SlidingWindow) Remaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.now())
	return max(0, sw.limit-len(sw.requests))
}

// Manager 按端点分组的速率限制
type Manager struct {
	limiters map[Endpoint]Limiter
	fallback Limiter
	mu       sync.RWMutex
}

// NewManager 使用 Polymarket 公开的默认限额
func NewManager() *Manager {
	return &Manager{
		limiters: map[Endpoint]Limiter{
			ClobBook:      NewSlidingWindow(200, 10*time.Second), // 200/10s
			ClobOrderPost: NewSlidingWindow(240, time.Second),    // 2400/10s 的突发上限按秒摊开
			DataPositions: NewSlidingWindow(75, 10*time.Second),
			DataGeneral:   NewSlidingWindow(200, 10*time.Second),
		},
		fallback: NewSlidingWindow(5000, 10*time.Second),
	}
}

// Set 覆盖某个端点的限流器
func (m *Manager) Set(endpoint Endpoint, l Limiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[endpoint] = l
}

// Limiter 获取端点限流器，未知端点走通用限额
func (m *Manager) Limiter(endpoint Endpoint) Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.limiters[endpoint]; ok {
		return l
	}
	return m.fallback
}

// Wait 等待端点配额
func (m *Manager) Wait(ctx context.Context, endpoint Endpoint) error {
	return m.Limiter(endpoint).Wait(ctx)
}
