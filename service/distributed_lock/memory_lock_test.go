/*
 * @module service/distributed_lock/memory_lock_test
 * @description 内存锁与带锁执行器单元测试
 * @architecture 测试层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 获取锁 -> 互斥验证 -> 过期/释放后可重新获取
 * @rules 覆盖互斥、TTL过期、跳过语义和上下文取消
 * @dependencies testing, testify
 * @refs memory_lock.go, lock_executor.go
 */

package distributed_lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockMutualExclusion(t *testing.T) {
	lock := NewMemoryLock()
	ctx := context.Background()

	locked, err := lock.TryLock(ctx, "key-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = lock.TryLock(ctx, "key-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, locked, "已持有的锁不可重复获取")

	// 不同键互不影响
	locked, err = lock.TryLock(ctx, "key-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, lock.Unlock(ctx, "key-a"))
	locked, err = lock.TryLock(ctx, "key-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked, "释放后可重新获取")
}

func TestMemoryLockTTLExpiry(t *testing.T) {
	lock := NewMemoryLock()
	ctx := context.Background()

	locked, err := lock.TryLock(ctx, "key", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, locked)

	time.Sleep(20 * time.Millisecond)

	held, err := lock.IsLocked(ctx, "key")
	require.NoError(t, err)
	assert.False(t, held)

	locked, err = lock.TryLock(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.True(t, locked, "过期后可重新获取")
}

func TestMemoryLockRefresh(t *testing.T) {
	lock := NewMemoryLock()
	ctx := context.Background()

	locked, err := lock.TryLock(ctx, "key", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, lock.Refresh(ctx, "key", time.Minute))
	time.Sleep(60 * time.Millisecond)

	held, err := lock.IsLocked(ctx, "key")
	require.NoError(t, err)
	assert.True(t, held, "续期后不应过期")
}

func TestExecuteWithLockSkipsWhenHeld(t *testing.T) {
	lock := NewMemoryLock()
	executor := NewLockExecutor(lock)
	ctx := context.Background()

	locked, err := lock.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	executed := false
	err = executor.ExecuteWithLock(ctx, "sweep", time.Minute, func() error {
		executed = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, executed, "锁被占用时跳过执行而非报错")
}

func TestExecuteWithLockReleasesAfterRun(t *testing.T) {
	lock := NewMemoryLock()
	executor := NewLockExecutor(lock)
	ctx := context.Background()

	executed := false
	err := executor.ExecuteWithLock(ctx, "sweep", time.Minute, func() error {
		executed = true
		held, err := lock.IsLocked(ctx, "sweep")
		require.NoError(t, err)
		assert.True(t, held, "执行期间持有锁")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)

	held, err := lock.IsLocked(ctx, "sweep")
	require.NoError(t, err)
	assert.False(t, held, "执行完毕后释放锁")
}

func TestExecuteWithRetryRunsWhenFree(t *testing.T) {
	executor := NewLockExecutor(NewMemoryLock())

	executed := false
	err := executor.ExecuteWithRetry(context.Background(), "record", time.Minute, func() error {
		executed = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)
}

func TestExecuteWithRetryHonorsContextCancel(t *testing.T) {
	lock := NewMemoryLock()
	executor := NewLockExecutor(lock)
	ctx, cancel := context.WithCancel(context.Background())

	locked, err := lock.TryLock(ctx, "record", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	cancel()
	err = executor.ExecuteWithRetry(ctx, "record", time.Minute, func() error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
