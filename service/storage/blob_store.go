/*
 * @module service/storage/blob_store
 * @description 文件存储接口定义，导入流水线通过窄接口读写数据文件和批次文件
 * @architecture 适配器模式 - 封装底层对象存储
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 流式读取 -> 处理 -> 流式写入
 * @rules 租约语义由 distributed_lock 提供，存储层只负责字节流
 * @dependencies io
 * @refs service/importer/splitter.go, service/storage/fs_store.go
 */

package storage

import (
	"context"
	"io"
)

// BlobStore 文件存储接口
type BlobStore interface {
	// StreamRead 按路径流式读取文件
	StreamRead(ctx context.Context, path string) (io.ReadCloser, error)
	// Write 流式写入文件
	Write(ctx context.Context, path string, reader io.Reader, contentType string) error
	// Delete 删除文件
	Delete(ctx context.Context, path string) error
	// Exists 判断文件是否存在
	Exists(ctx context.Context, path string) (bool, error)
}
