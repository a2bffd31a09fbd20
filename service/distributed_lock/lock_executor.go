/*
 * @module service/distributed_lock/lock_executor
 * @description 带锁执行器，封装锁冲突重试策略，简化读改写临界区的使用
 * @architecture 工具层 - 提供分布式锁能力
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 尝试获取锁 -> 冲突时固定间隔重试 -> 执行临界区 -> 释放锁
 * @rules 锁冲突按2秒固定间隔重试，最多150次，超出后返回超时错误
 * @dependencies service/distributed_lock
 * @refs service/importer/status_service.go, service/importer/batch_service.go
 */

package distributed_lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrLockTimeout 重试次数耗尽仍未获取到锁
var ErrLockTimeout = errors.New("获取锁超时: 重试次数已耗尽")

const (
	// DefaultRetryDelay 锁冲突重试间隔
	DefaultRetryDelay = 2 * time.Second
	// DefaultMaxAttempts 最大重试次数，约等于5分钟的等待上限
	DefaultMaxAttempts = 150
)

// LockExecutor 带锁执行器
type LockExecutor struct {
	lock        DistributedLock
	retryDelay  time.Duration
	maxAttempts int
}

// NewLockExecutor 创建带锁执行器
func NewLockExecutor(lock DistributedLock) *LockExecutor {
	return &LockExecutor{
		lock:        lock,
		retryDelay:  DefaultRetryDelay,
		maxAttempts: DefaultMaxAttempts,
	}
}

// ExecuteWithLock 在锁保护下执行函数，锁被占用时跳过执行
// 适用于多实例只需一个执行者的定时任务
func (e *LockExecutor) ExecuteWithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return fmt.Errorf("获取锁失败: %w", err)
	}

	if !locked {
		slog.Debug("分布式锁: 锁已被其他实例持有，跳过执行", "key", key)
		return nil // 不是错误，只是被其他实例执行了
	}

	// 确保函数执行完毕后释放锁
	defer func() {
		if unlockErr := e.lock.Unlock(ctx, key); unlockErr != nil {
			slog.Error("分布式锁: 释放锁失败", "key", key, "error", unlockErr)
		}
	}()

	return fn()
}

// ExecuteWithRetry 在锁保护下执行函数，锁被占用时按固定间隔重试
// 适用于并发批次任务对同一进度记录的读改写，冲突是常态而非异常
func (e *LockExecutor) ExecuteWithRetry(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		locked, err := e.lock.TryLock(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("获取锁失败: %w", err)
		}

		if locked {
			defer func() {
				if unlockErr := e.lock.Unlock(ctx, key); unlockErr != nil {
					slog.Error("分布式锁: 释放锁失败", "key", key, "error", unlockErr)
				}
			}()
			return fn()
		}

		slog.Debug("分布式锁: 锁冲突，等待重试",
			"key", key,
			"attempt", attempt,
			"delay", e.retryDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}

	return fmt.Errorf("%w: key=%s", ErrLockTimeout, key)
}
