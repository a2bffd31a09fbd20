/*
 * @module service/importer/batch_service
 * @description 批次进度服务，在分布式锁保护下跟踪批次完成位图并聚合错误
 * @architecture 分层架构 - 核心服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 创建零位图 -> 并发批次置位 -> 全部完成后按有无错误收尾为 COMPLETE/FAILED
 * @rules 位图读改写必须线性化：获取锁 -> 读位图 -> 置位 -> 写回 -> 释放；
 *        错误记录合并追加而非覆盖
 * @dependencies gorm.io/gorm, service/distributed_lock, github.com/RoaringBitmap/roaring
 * @refs service/importer/observation_importer.go, service/importer/orchestrator.go
 */

package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"statistics-import-service/service/distributed_lock"
	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"

	"gorm.io/gorm"
)

// batchLockTTL 批次记录读改写临界区的锁有效期
const batchLockTTL = 30 * time.Second

// BatchService 批次进度服务
type BatchService struct {
	db            *gorm.DB
	executor      *distributed_lock.LockExecutor
	statusService *StatusService
}

// NewBatchService 创建批次进度服务实例
func NewBatchService(db *gorm.DB, executor *distributed_lock.LockExecutor, statusService *StatusService) *BatchService {
	return &BatchService{db: db, executor: executor, statusService: statusService}
}

func batchLockKey(importID string) string {
	return "batch_record:" + importID
}

// CreateImport 初始化零位图的批次进度记录，重复执行幂等
func (s *BatchService) CreateImport(ctx context.Context, dataImport *models.DataImport, numBatches int) error {
	record := models.BatchRecord{
		ImportID:     dataImport.ID,
		DataFileName: dataImport.DataFileName,
		NumBatches:   numBatches,
		Status:       string(meta.ImportStatusStage4),
	}
	err := s.db.WithContext(ctx).
		Where("import_id = ? AND data_file_name = ?", dataImport.ID, dataImport.DataFileName).
		FirstOrCreate(&record).Error
	if err != nil {
		return fmt.Errorf("创建批次进度记录失败: %w", err)
	}
	return nil
}

// getRecord 读取批次进度记录
func (s *BatchService) getRecord(ctx context.Context, importID string) (*models.BatchRecord, error) {
	var record models.BatchRecord
	if err := s.db.WithContext(ctx).First(&record, "import_id = ?", importID).Error; err != nil {
		return nil, fmt.Errorf("读取批次进度记录失败: %w", err)
	}
	return &record, nil
}

// MarkBatchComplete 标记批次完成
// 位图置位在锁内线性化执行；全部批次完成后按有无错误收尾导入
func (s *BatchService) MarkBatchComplete(ctx context.Context, dataImport *models.DataImport, batchNo int) error {
	var allDone bool
	var accumulated models.JSONBStringArray
	var completed int

	err := s.executor.ExecuteWithRetry(ctx, batchLockKey(dataImport.ID), batchLockTTL, func() error {
		record, err := s.getRecord(ctx, dataImport.ID)
		if err != nil {
			return err
		}
		if err := record.MarkBatchCompleted(batchNo); err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(record).
			Update("completed_bitmap", record.CompletedBitmap).Error; err != nil {
			return fmt.Errorf("写回批次位图失败: %w", err)
		}

		completed, err = record.CompletedCount()
		if err != nil {
			return err
		}
		allDone, err = record.IsComplete()
		if err != nil {
			return err
		}
		accumulated = record.Errors
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("批次完成",
		"import_id", dataImport.ID,
		"batch_no", batchNo,
		"completed", completed,
		"num_batches", dataImport.NumBatches)

	if !allDone {
		percent := float64(completed) / float64(dataImport.NumBatches) * 100
		return s.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusStage4, percent)
	}

	// 全部批次完成：无错误收尾为 COMPLETE，有错误收尾为 FAILED
	if len(accumulated) == 0 {
		return s.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusComplete, 100)
	}
	return s.statusService.FailImport(ctx, dataImport.ID, accumulated)
}

// IsComplete 判断全部批次是否均已完成
func (s *BatchService) IsComplete(ctx context.Context, importID string) (bool, error) {
	record, err := s.getRecord(ctx, importID)
	if err != nil {
		return false, err
	}
	return record.IsComplete()
}

// GetErrors 读取批次记录上累积的错误
func (s *BatchService) GetErrors(ctx context.Context, importID string) ([]string, error) {
	record, err := s.getRecord(ctx, importID)
	if err != nil {
		return nil, err
	}
	return record.Errors, nil
}

// RecordErrors 追加批次错误，与已有错误合并
func (s *BatchService) RecordErrors(ctx context.Context, importID string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return s.executor.ExecuteWithRetry(ctx, batchLockKey(importID), batchLockTTL, func() error {
		record, err := s.getRecord(ctx, importID)
		if err != nil {
			return err
		}
		merged := append(record.Errors, errs...)
		if err := s.db.WithContext(ctx).Model(record).
			Update("errors", models.JSONBStringArray(merged)).Error; err != nil {
			return fmt.Errorf("记录批次错误失败: %w", err)
		}
		return nil
	})
}

// FailImport 无条件置失败并记录错误，绕过位图逻辑
func (s *BatchService) FailImport(ctx context.Context, importID string, errs []string) error {
	if err := s.RecordErrors(ctx, importID, errs); err != nil {
		return err
	}
	err := s.executor.ExecuteWithRetry(ctx, batchLockKey(importID), batchLockTTL, func() error {
		return s.db.WithContext(ctx).Model(&models.BatchRecord{}).
			Where("import_id = ?", importID).
			Update("status", string(meta.ImportStatusFailed)).Error
	})
	if err != nil {
		return fmt.Errorf("更新批次进度状态失败: %w", err)
	}
	return s.statusService.FailImport(ctx, importID, errs)
}
