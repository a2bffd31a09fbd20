/*
 * @module service/importer/errors
 * @description 导入流水线错误类型定义，区分校验错误、行级解析错误和状态冲突
 * @architecture 分层架构 - 核心服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 行级错误聚合到导入错误列表 -> 导入置为失败
 * @rules 锁冲突只重试不上抛；过期状态更新是正常无操作，不算错误
 * @dependencies 无
 * @refs service/importer/observation_importer.go, service/importer/validator.go
 */

package importer

import (
	"errors"
	"fmt"
)

// 行级解析错误哨兵，聚合进导入错误列表时附带行号
var (
	ErrInvalidGeographicLevel = errors.New("无法识别的地理层级")
	ErrInvalidTimeIdentifier  = errors.New("无法识别的时间标识")
	ErrInvalidTimePeriod      = errors.New("无法解析的时间区间")
)

// RowError 带行号的行级错误
type RowError struct {
	Row int64
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("第 %d 行: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// NewRowError 创建行级错误
func NewRowError(row int64, err error) *RowError {
	return &RowError{Row: row, Err: err}
}
