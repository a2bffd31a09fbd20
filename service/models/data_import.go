/*
 * @module service/models/data_import
 * @description 数据导入模型定义，包括导入记录和批次进度记录
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 导入创建 -> 校验 -> 元数据导入 -> 分片 -> 按批次导入 -> 完成/失败/取消
 * @rules 导入记录只增不删，作为审计痕迹保留；批次位图在互斥锁内读改写
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/RoaringBitmap/roaring
 * @refs service/importer/status_service.go, service/importer/batch_service.go
 */

package models

import (
	"bytes"
	"fmt"
	"time"

	"statistics-import-service/service/meta"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DataImport 数据导入记录
type DataImport struct {
	ID                      string            `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	SubjectID               string            `json:"subject_id" gorm:"not null;type:varchar(36);index"`
	DataFilePath            string            `json:"data_file_path" gorm:"not null;size:500"`
	MetaFilePath            string            `json:"meta_file_path" gorm:"not null;size:500"`
	DataFileName            string            `json:"data_file_name" gorm:"not null;size:255"`
	RowsPerBatch            int               `json:"rows_per_batch" gorm:"not null;default:1000" example:"1000"`
	TotalRows               int               `json:"total_rows" gorm:"not null;default:0" example:"2500"`
	NumBatches              int               `json:"num_batches" gorm:"not null;default:0" example:"3"`
	Status                  string            `json:"status" gorm:"not null;size:20;default:'QUEUED';index" example:"QUEUED"`
	StagePercentageComplete int               `json:"stage_percentage_complete" gorm:"not null;default:0" example:"0"` // 当前阶段进度百分比 0-100
	Errors                  JSONBStringArray  `json:"errors,omitempty" gorm:"type:jsonb"`
	GeographicLevels        JSONBStringArray  `json:"geographic_levels,omitempty" gorm:"type:jsonb"` // 文件中出现过的地理层级
	CreatedAt               time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt               time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	Subject *Subject `json:"subject,omitempty" gorm:"foreignKey:SubjectID"`
}

// BeforeCreate GORM钩子，创建前生成UUID并验证
func (d *DataImport) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if !meta.IsValidImportStatus(d.Status) {
		return fmt.Errorf("无效的导入状态: %s", d.Status)
	}
	return nil
}

// ImportStatus 返回类型化的导入状态
func (d *DataImport) ImportStatus() meta.ImportStatus {
	return meta.ImportStatus(d.Status)
}

// BatchRecord 批次进度记录，每个导入的数据文件一条
type BatchRecord struct {
	ID              string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ImportID        string           `json:"import_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_batch_import_file"`
	DataFileName    string           `json:"data_file_name" gorm:"not null;size:255;uniqueIndex:idx_batch_import_file"`
	NumBatches      int              `json:"num_batches" gorm:"not null"`
	CompletedBitmap []byte           `json:"-" gorm:"type:bytea"` // roaring 位图序列化字节
	Errors          JSONBStringArray `json:"errors,omitempty" gorm:"type:jsonb"`
	Status          string           `json:"status" gorm:"not null;size:20;default:'STAGE_4'"`
	CreatedAt       time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (b *BatchRecord) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// bitmap 反序列化已完成批次位图，空字节返回空位图
func (b *BatchRecord) bitmap() (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(b.CompletedBitmap) == 0 {
		return bm, nil
	}
	if _, err := bm.ReadFrom(bytes.NewReader(b.CompletedBitmap)); err != nil {
		return nil, fmt.Errorf("批次位图反序列化失败: %w", err)
	}
	return bm, nil
}

// MarkBatchCompleted 标记批次完成，批次号从1开始
// 必须在持有批次记录互斥锁时调用
func (b *BatchRecord) MarkBatchCompleted(batchNo int) error {
	if batchNo < 1 || batchNo > b.NumBatches {
		return fmt.Errorf("批次号越界: %d (共 %d 批)", batchNo, b.NumBatches)
	}
	bm, err := b.bitmap()
	if err != nil {
		return err
	}
	bm.Add(uint32(batchNo - 1))
	data, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("批次位图序列化失败: %w", err)
	}
	b.CompletedBitmap = data
	return nil
}

// IsBatchCompleted 判断指定批次是否已完成
func (b *BatchRecord) IsBatchCompleted(batchNo int) (bool, error) {
	bm, err := b.bitmap()
	if err != nil {
		return false, err
	}
	return bm.Contains(uint32(batchNo - 1)), nil
}

// CompletedCount 已完成的批次数
func (b *BatchRecord) CompletedCount() (int, error) {
	bm, err := b.bitmap()
	if err != nil {
		return 0, err
	}
	return int(bm.GetCardinality()), nil
}

// IsComplete 所有批次是否均已完成
func (b *BatchRecord) IsComplete() (bool, error) {
	count, err := b.CompletedCount()
	if err != nil {
		return false, err
	}
	return count >= b.NumBatches, nil
}
