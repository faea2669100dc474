// Package ratelimit 按调用方标识实现固定窗口限流。
//
// 每个 key 的窗口从第一次请求开始，持续配置的时长。窗口不滑动，
// 因此在窗口边界前后最多可通过两倍上限的请求。状态只保存在当前进程内。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Record 单个 key 的计数记录
type Record struct {
	Count     int
	ResetTime time.Time
}

// Expired 判断窗口在 now 时是否已结束
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ResetTime)
}

// Store 按 key 保存记录。实现无需并发安全，Limiter 会串行化所有访问。
type Store interface {
	Get(key string) (Record, bool)
	Put(key string, rec Record)
	Delete(key string)
	Range(fn func(key string, rec Record) bool)
}

// Clock 提供当前时间
type Clock interface {
	Now() time.Time
}

// SystemClock 读取系统时间
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Limiter 基于 Store 的固定窗口限流器
type Limiter struct {
	mu    sync.Mutex
	store Store
	clock Clock
}

// Option 限流器配置项
type Option func(*Limiter)

// WithStore 替换默认的内存存储
func WithStore(store Store) Option {
	return func(l *Limiter) {
		l.store = store
	}
}

// WithClock 替换系统时钟
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// New 创建限流器，默认使用 MemoryStore 和系统时钟。
func New(opts ...Option) *Limiter {
	l := &Limiter{
		store: NewMemoryStore(),
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow 为 key 计数一次请求，并返回当前窗口内是否未超限。
// 被拒绝的请求不修改记录。
func (l *Limiter) Allow(key string, limit int, window time.Duration) bool {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Millisecond
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	rec, ok := l.store.Get(key)
	if !ok || rec.Expired(now) {
		l.store.Put(key, Record{Count: 1, ResetTime: now.Add(window)})
		return true
	}

	if rec.Count >= limit {
		return false
	}

	rec.Count++
	l.store.Put(key, rec)
	return true
}

// Sweep 清理过期记录，返回清理数量
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()

	var expired []string
	l.store.Range(func(key string, rec Record) bool {
		if rec.Expired(now) {
			expired = append(expired, key)
		}
		return true
	})

	for _, key := range expired {
		l.store.Delete(key)
	}
	return len(expired)
}

// Run 每隔 interval 清理一次，直到 ctx 结束。
// onSweep 不为空时会收到每次清理的数量。
func (l *Limiter) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := l.Sweep()
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}
