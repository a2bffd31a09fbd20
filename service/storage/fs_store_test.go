/*
 * @module service/storage/fs_store_test
 * @description 文件系统存储单元测试
 * @architecture 测试层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 写入 -> 读取 -> 存在性检查 -> 删除
 * @rules 覆盖 BOM 剥离、读写往返、子目录路径和幂等删除
 * @dependencies testing, testify
 * @refs fs_store.go
 */

package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FsStore {
	store, err := NewFsStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func readAll(t *testing.T, store *FsStore, path string) string {
	reader, err := store.StreamRead(context.Background(), path)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(content)
}

func TestFsStoreWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := "time_period,geographic_level\n2018,National\n"
	require.NoError(t, store.Write(ctx, "imports/data.csv", strings.NewReader(content), "text/csv"))

	assert.Equal(t, content, readAll(t, store, "imports/data.csv"))
}

func TestFsStoreStripsBom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "data.csv",
		strings.NewReader("\uFEFFtime_period,geographic_level\n"), "text/csv"))

	content := readAll(t, store, "data.csv")
	assert.Equal(t, "time_period,geographic_level\n", content)
	assert.False(t, strings.HasPrefix(content, "\uFEFF"))
}

func TestFsStoreOverwriteReplacesContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "data.csv", strings.NewReader("旧内容"), "text/csv"))
	require.NoError(t, store.Write(ctx, "data.csv", strings.NewReader("新内容"), "text/csv"))

	assert.Equal(t, "新内容", readAll(t, store, "data.csv"))
}

func TestFsStoreExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "missing.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.Write(ctx, "present.csv", strings.NewReader("x"), "text/csv"))
	exists, err = store.Exists(ctx, "present.csv")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFsStoreDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, "data.csv", strings.NewReader("x"), "text/csv"))
	require.NoError(t, store.Delete(ctx, "data.csv"))

	exists, err := store.Exists(ctx, "data.csv")
	require.NoError(t, err)
	assert.False(t, exists)

	// 删除不存在的文件不报错
	require.NoError(t, store.Delete(ctx, "data.csv"))
}

func TestFsStoreReadMissingFileFails(t *testing.T) {
	store := newTestStore(t)

	_, err := store.StreamRead(context.Background(), "missing.csv")
	assert.Error(t, err)
}
