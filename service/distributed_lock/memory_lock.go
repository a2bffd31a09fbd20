/*
 * @module service/distributed_lock/memory_lock
 * @description 进程内内存锁实现，用于单实例运行和测试环境
 * @architecture 工具层 - 提供分布式锁能力
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 获取锁 -> 执行 -> 释放锁/到期失效
 * @rules 与Redis实现同语义：按键互斥、支持TTL过期
 * @dependencies sync
 * @refs service/distributed_lock/redis_lock.go
 */

package distributed_lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLock 进程内内存锁
type MemoryLock struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryLock 创建内存锁实例
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		expires: make(map[string]time.Time),
	}
}

// TryLock 尝试获取锁
func (m *MemoryLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expiry, held := m.expires[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.expires[key] = time.Now().Add(ttl)
	return true, nil
}

// Unlock 释放锁
func (m *MemoryLock) Unlock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, key)
	return nil
}

// Refresh 刷新锁的过期时间
func (m *MemoryLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.expires[key]; held {
		m.expires[key] = time.Now().Add(ttl)
	}
	return nil
}

// IsLocked 检查锁是否存在
func (m *MemoryLock) IsLocked(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, held := m.expires[key]
	return held && time.Now().Before(expiry), nil
}
