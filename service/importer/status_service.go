/*
 * @module service/importer/status_service
 * @description 导入状态机服务，在分布式锁保护下应用单调推进规则更新状态和进度
 * @architecture 分层架构 - 核心服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow QUEUED -> STAGE_1..STAGE_4 -> COMPLETE，异常时 FAILED 或 ABORTING -> CANCELLED/FAILED
 * @rules 终态后忽略一切更新；中止中仅接受收尾状态；阶段和百分比不回退；相同取整百分比静默忽略
 * @dependencies gorm.io/gorm, service/distributed_lock
 * @refs service/importer/orchestrator.go, service/importer/batch_service.go
 */

package importer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"statistics-import-service/service/distributed_lock"
	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"

	"gorm.io/gorm"
)

// statusLockTTL 状态记录读改写临界区的锁有效期
const statusLockTTL = 30 * time.Second

// StatusService 导入状态机服务
type StatusService struct {
	db       *gorm.DB
	executor *distributed_lock.LockExecutor
}

// NewStatusService 创建状态机服务实例
func NewStatusService(db *gorm.DB, executor *distributed_lock.LockExecutor) *StatusService {
	return &StatusService{db: db, executor: executor}
}

func statusLockKey(importID string) string {
	return "import_status:" + importID
}

// GetImport 读取导入记录
func (s *StatusService) GetImport(ctx context.Context, importID string) (*models.DataImport, error) {
	var dataImport models.DataImport
	if err := s.db.WithContext(ctx).First(&dataImport, "id = ?", importID).Error; err != nil {
		return nil, fmt.Errorf("读取导入记录失败: %w", err)
	}
	return &dataImport, nil
}

// IsFinishedOrAborting 判断导入是否已结束或正在中止
func (s *StatusService) IsFinishedOrAborting(ctx context.Context, importID string) (bool, error) {
	dataImport, err := s.GetImport(ctx, importID)
	if err != nil {
		return false, err
	}
	return dataImport.ImportStatus().IsFinishedOrAborting(), nil
}

// clampPercent 百分比取整并收缩到 [0,100]
func clampPercent(percent float64) int {
	rounded := int(math.Round(percent))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// UpdateStatus 请求一次状态更新，按单调推进规则决定接受或忽略
// 并发批次任务会产生乱序和重复的更新请求，整个判定在锁内完成
func (s *StatusService) UpdateStatus(ctx context.Context, importID string, newStatus meta.ImportStatus, percent float64) error {
	rounded := clampPercent(percent)

	return s.executor.ExecuteWithRetry(ctx, statusLockKey(importID), statusLockTTL, func() error {
		dataImport, err := s.GetImport(ctx, importID)
		if err != nil {
			return err
		}
		current := dataImport.ImportStatus()

		// 终态后忽略一切更新
		if current.IsFinished() {
			slog.Debug("忽略过期状态更新: 导入已结束",
				"import_id", importID,
				"current", current,
				"requested", newStatus)
			return nil
		}

		// 中止中仅接受收尾或中止状态，防止滞后批次的进度覆盖中止
		if current.IsAborting() && !newStatus.IsFinishedOrAborting() {
			slog.Debug("忽略过期状态更新: 导入正在中止",
				"import_id", importID,
				"requested", newStatus)
			return nil
		}

		// 前进中的阶段更新不允许回退阶段或百分比
		if !newStatus.IsFinishedOrAborting() {
			if current.Order() > newStatus.Order() {
				slog.Debug("忽略过期状态更新: 阶段回退",
					"import_id", importID,
					"current", current,
					"requested", newStatus)
				return nil
			}
			if current == newStatus && rounded <= dataImport.StagePercentageComplete {
				// 相同阶段且百分比未前进，静默无操作
				return nil
			}
		}

		if err := s.db.WithContext(ctx).Model(&models.DataImport{}).
			Where("id = ?", importID).
			Updates(map[string]interface{}{
				"status":                    string(newStatus),
				"stage_percentage_complete": rounded,
			}).Error; err != nil {
			return fmt.Errorf("更新导入状态失败: %w", err)
		}

		slog.Info("导入状态变更",
			"import_id", importID,
			"from", current,
			"to", newStatus,
			"percent", rounded)
		return nil
	})
}

// AppendErrors 追加导入错误，合并已有错误而非覆盖
func (s *StatusService) AppendErrors(ctx context.Context, importID string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return s.executor.ExecuteWithRetry(ctx, statusLockKey(importID), statusLockTTL, func() error {
		dataImport, err := s.GetImport(ctx, importID)
		if err != nil {
			return err
		}
		// 终态后错误列表同样冻结，防止迟到的失败上报重复追加
		if dataImport.ImportStatus().IsFinished() {
			slog.Debug("忽略过期错误追加: 导入已结束",
				"import_id", importID,
				"current", dataImport.ImportStatus())
			return nil
		}
		merged := append(dataImport.Errors, errs...)
		if err := s.db.WithContext(ctx).Model(&models.DataImport{}).
			Where("id = ?", importID).
			Update("errors", models.JSONBStringArray(merged)).Error; err != nil {
			return fmt.Errorf("记录导入错误失败: %w", err)
		}
		return nil
	})
}

// FailImport 记录错误并将导入置为失败
// 首次调用追加错误并收尾；之后导入已处终态，错误和状态均不再变更
func (s *StatusService) FailImport(ctx context.Context, importID string, errs []string) error {
	if err := s.AppendErrors(ctx, importID, errs); err != nil {
		return err
	}
	return s.UpdateStatus(ctx, importID, meta.ImportStatusFailed, 100)
}

// CancelImport 将导入置为中止中，由各阶段轮询退出后收尾
func (s *StatusService) CancelImport(ctx context.Context, importID string) error {
	return s.UpdateStatus(ctx, importID, meta.ImportStatusAborting, 0)
}
