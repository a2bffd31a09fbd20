/*
 * @module service/importer/validator
 * @description 导入第一阶段：数据文件和元数据文件的结构校验与总行数统计
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 打开文件 -> 校验表头 -> 逐行校验列数 -> 统计总行数
 * @rules 校验错误聚合到错误列表后置导入失败，不让工作进程崩溃
 * @dependencies service/storage, service/meta
 * @refs service/importer/orchestrator.go
 */

package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/storage"
)

// maxValidationErrors 校验错误聚合上限，超出后直接截断避免错误列表失控
const maxValidationErrors = 100

// Validator 文件结构校验器
type Validator struct {
	store storage.BlobStore
}

// NewValidator 创建校验器实例
func NewValidator(store storage.BlobStore) *Validator {
	return &Validator{store: store}
}

// ValidationResult 校验结果
type ValidationResult struct {
	TotalRows int      // 数据文件的数据行数，不含表头
	Errors    []string // 聚合的校验错误
}

// Validate 校验数据文件和元数据文件的结构
func (v *Validator) Validate(ctx context.Context, dataFilePath, metaFilePath string) (*ValidationResult, error) {
	result := &ValidationResult{}

	if err := v.validateDataFile(ctx, dataFilePath, result); err != nil {
		return nil, err
	}
	if err := v.validateMetaFile(ctx, metaFilePath, result); err != nil {
		return nil, err
	}
	return result, nil
}

// validateDataFile 校验数据文件表头和每行列数，并统计总行数
func (v *Validator) validateDataFile(ctx context.Context, path string, result *ValidationResult) error {
	reader, err := OpenCsv(ctx, v.store, path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("数据文件打开失败: %v", err))
		return nil
	}
	defer reader.Close()

	headers := reader.Headers()
	if len(headers) == 0 {
		result.Errors = append(result.Errors, "数据文件表头为空")
		return nil
	}
	for _, h := range headers {
		if h == "" {
			result.Errors = append(result.Errors, "数据文件表头存在空列名")
			break
		}
	}
	for _, h := range headers {
		if strings.ContainsRune(h, '"') {
			result.Errors = append(result.Errors, fmt.Sprintf("数据文件表头包含非法引号: %s", h))
			break
		}
	}
	for _, required := range []string{meta.DataColTimePeriod, meta.DataColTimeIdentifier, meta.DataColGeographicLevel} {
		if !reader.HasColumn(required) {
			result.Errors = append(result.Errors, fmt.Sprintf("数据文件缺少必需列: %s", required))
		}
	}

	for {
		record, csvRow, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// CSV 解析失败（裸引号等）按校验错误聚合
			result.Errors = append(result.Errors, fmt.Sprintf("第 %d 行解析失败: %v", csvRow, err))
			if len(result.Errors) >= maxValidationErrors {
				result.Errors = append(result.Errors, "校验错误过多，已截断")
				return nil
			}
			continue
		}
		result.TotalRows++
		if len(record) != len(headers) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("第 %d 行列数不匹配: 期望 %d 列，实际 %d 列", csvRow, len(headers), len(record)))
			if len(result.Errors) >= maxValidationErrors {
				result.Errors = append(result.Errors, "校验错误过多，已截断")
				return nil
			}
		}
	}
	return nil
}

// validateMetaFile 校验元数据文件表头与固定列定义一致
func (v *Validator) validateMetaFile(ctx context.Context, path string, result *ValidationResult) error {
	reader, err := OpenCsv(ctx, v.store, path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("元数据文件打开失败: %v", err))
		return nil
	}
	defer reader.Close()

	for _, required := range meta.MetaFileColumns {
		if !reader.HasColumn(required) {
			result.Errors = append(result.Errors, fmt.Sprintf("元数据文件缺少必需列: %s", required))
		}
	}

	for {
		record, csvRow, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("元数据文件第 %d 行解析失败: %v", csvRow, err))
			continue
		}
		if len(record) != len(reader.Headers()) {
			result.Errors = append(result.Errors,
				fmt.Sprintf("元数据文件第 %d 行列数不匹配: 期望 %d 列，实际 %d 列", csvRow, len(reader.Headers()), len(record)))
		}
		if _, ok := meta.ColumnTypeFromLabel(reader.Get(record, meta.MetaColType)); !ok {
			result.Errors = append(result.Errors,
				fmt.Sprintf("元数据文件第 %d 行列类型无效: %s", csvRow, reader.Get(record, meta.MetaColType)))
		}
	}
	return nil
}
