package qos

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter 固定容量的并发准入器
// 全局动作准入 (默认 10) 与端口探测扇出 (默认 200) 各持有一个实例
type Limiter struct {
	name     string
	capacity int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter 创建限流器，capacity 小于 1 时按 1 处理
func NewLimiter(name string, capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		name:     name,
		capacity: int64(capacity),
		sem:      semaphore.NewWeighted(int64(capacity)),
	}
}

// Acquire 获取一个令牌，阻塞直到有令牌或 ctx 取消
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.track()
	return nil
}

// Release 归还令牌
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

func (l *Limiter) track() {
	n := l.inFlight.Add(1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Name 限流器名称
func (l *Limiter) Name() string {
	return l.name
}

// Capacity 容量
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// InFlight 当前占用数
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Peak 历史最高占用数
func (l *Limiter) Peak() int {
	return int(l.peak.Load())
}
