/*
 * @module service/importer/csv_reader
 * @description CSV 流式读取器，封装表头索引和行号跟踪
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 打开流 -> 读取表头 -> 逐行读取 -> 关闭流
 * @rules 行号从1开始计数，表头占第1行；列数校验交给校验器处理
 * @dependencies encoding/csv, service/storage
 * @refs service/importer/validator.go, service/importer/observation_importer.go
 */

package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"statistics-import-service/service/storage"
)

// CsvReader 带表头索引的 CSV 读取器
type CsvReader struct {
	reader  *csv.Reader
	closer  io.Closer
	headers []string
	index   map[string]int
	csvRow  int64 // 当前行号，表头为第1行
}

// OpenCsv 从文件存储打开 CSV 文件并读取表头
func OpenCsv(ctx context.Context, store storage.BlobStore, path string) (*CsvReader, error) {
	stream, err := store.StreamRead(ctx, path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(stream)
	reader.FieldsPerRecord = -1 // 列数校验由校验器负责
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("读取表头失败 %s: %w", path, err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}

	return &CsvReader{
		reader:  reader,
		closer:  stream,
		headers: headers,
		index:   index,
		csvRow:  1,
	}, nil
}

// Headers 表头列名
func (r *CsvReader) Headers() []string {
	return r.headers
}

// HasColumn 判断表头是否包含指定列
func (r *CsvReader) HasColumn(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Read 读取下一行，返回行内容和其在源文件中的行号
// 读到文件尾返回 io.EOF
func (r *CsvReader) Read() ([]string, int64, error) {
	record, err := r.reader.Read()
	if err != nil {
		return nil, r.csvRow, err
	}
	r.csvRow++
	return record, r.csvRow, nil
}

// Get 按列名取值，列不存在或越界返回空串
func (r *CsvReader) Get(record []string, column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// Close 关闭底层流
func (r *CsvReader) Close() error {
	return r.closer.Close()
}
