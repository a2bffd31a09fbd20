/*
 * @module service/storage/fs_store
 * @description 本地文件系统存储实现，用于本地运行和测试环境
 * @architecture 适配器模式 - 文件存储的文件系统适配
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 流式读取 -> 处理 -> 临时文件写入 -> 原子重命名
 * @rules 读取时剥离 UTF-8 BOM，写入先落临时文件再重命名保证不产生半截文件
 * @dependencies golang.org/x/text/encoding/unicode, golang.org/x/text/transform
 * @refs service/storage/blob_store.go
 */

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// FsStore 本地文件系统存储
type FsStore struct {
	root string
}

// NewFsStore 创建文件系统存储实例
func NewFsStore(root string) (*FsStore, error) {
	if root == "" {
		root = getEnvWithDefault("BLOB_ROOT", "./blob-data")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建存储根目录失败: %w", err)
	}
	return &FsStore{root: root}, nil
}

// fullPath 拼接存储根目录下的绝对路径
func (s *FsStore) fullPath(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// bomStripReadCloser 带 BOM 剥离的读取器
type bomStripReadCloser struct {
	io.Reader
	closer io.Closer
}

func (r *bomStripReadCloser) Close() error {
	return r.closer.Close()
}

// StreamRead 按路径流式读取文件，剥离 UTF-8 BOM
func (s *FsStore) StreamRead(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(s.fullPath(path))
	if err != nil {
		return nil, fmt.Errorf("打开文件失败 %s: %w", path, err)
	}
	decoder := unicode.UTF8BOM.NewDecoder()
	return &bomStripReadCloser{
		Reader: transform.NewReader(file, decoder),
		closer: file,
	}, nil
}

// Write 流式写入文件，先写临时文件再原子重命名
func (s *FsStore) Write(ctx context.Context, path string, reader io.Reader, contentType string) error {
	full := s.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入文件失败 %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("重命名文件失败 %s: %w", path, err)
	}
	return nil
}

// Delete 删除文件，文件不存在视为成功
func (s *FsStore) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.fullPath(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除文件失败 %s: %w", path, err)
	}
	return nil
}

// Exists 判断文件是否存在
func (s *FsStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(s.fullPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("检查文件状态失败 %s: %w", path, err)
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
