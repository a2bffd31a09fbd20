/*
 * @module service/importer/orchestrator
 * @description 导入编排器，驱动校验 -> 元数据与预扫描 -> 切分 -> 批次分发 -> 收尾的完整状态机
 * @architecture 分层架构 - 核心服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow QUEUED -> STAGE_1 -> STAGE_2 -> STAGE_3 -> STAGE_4 -> COMPLETE/FAILED/CANCELLED
 * @rules 每个阶段开始前轮询状态，中止中则收尾为 CANCELLED；
 *        同名主体重新导入先整体删除旧主体及其附属数据；
 *        同一数据文件最多存在一个未收尾的导入记录
 * @dependencies gorm.io/gorm, service/storage, service/dispatch
 * @refs service/importer/status_service.go, api/controllers/import_controller.go
 */

package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// ErrImportInProgress 同一数据文件已存在未收尾的导入
var ErrImportInProgress = errors.New("该数据文件已存在未完成的导入")

// BatchDispatcher 批次任务分发接口，由消息队列适配实现
type BatchDispatcher interface {
	// DispatchBatch 投递一条"处理导入I的第N批"消息
	DispatchBatch(ctx context.Context, importID string, batchNo int, batchFilePath string) error
}

// Orchestrator 导入编排器
type Orchestrator struct {
	db                  *gorm.DB
	store               storage.BlobStore
	cache               *ImporterCache
	statusService       *StatusService
	batchService        *BatchService
	validator           *Validator
	metadataImporter    *MetadataImporter
	splitter            *Splitter
	observationImporter *ObservationImporter
	dispatcher          BatchDispatcher // 为空时批次在本进程内顺序执行
}

// NewOrchestrator 创建导入编排器实例
func NewOrchestrator(db *gorm.DB, store storage.BlobStore, cache *ImporterCache,
	statusService *StatusService, batchService *BatchService, dispatcher BatchDispatcher) *Orchestrator {
	return &Orchestrator{
		db:                  db,
		store:               store,
		cache:               cache,
		statusService:       statusService,
		batchService:        batchService,
		validator:           NewValidator(store),
		metadataImporter:    NewMetadataImporter(db, store),
		splitter:            NewSplitter(db, store, statusService),
		observationImporter: NewObservationImporter(db, store, cache, statusService, batchService),
		dispatcher:          dispatcher,
	}
}

// CreateImportRequest 导入创建请求
type CreateImportRequest struct {
	ReleaseID    string `json:"release_id"`
	SubjectName  string `json:"subject_name"`
	DataFilePath string `json:"data_file_path"`
	MetaFilePath string `json:"meta_file_path"`
	RowsPerBatch int    `json:"rows_per_batch,omitempty"`
}

// CreateImport 创建主体和导入记录
// 同名主体整体替换：删除旧主体及其附属数据后重建；
// 主体唯一索引兜底并发的首次导入竞争，冲突按可重试错误上抛
func (o *Orchestrator) CreateImport(ctx context.Context, req *CreateImportRequest) (*models.DataImport, error) {
	var inProgress int64
	err := o.db.WithContext(ctx).Model(&models.DataImport{}).
		Where("data_file_path = ? AND status NOT IN ?", req.DataFilePath,
			[]string{string(meta.ImportStatusComplete), string(meta.ImportStatusFailed), string(meta.ImportStatusCancelled)}).
		Count(&inProgress).Error
	if err != nil {
		return nil, fmt.Errorf("查询进行中导入失败: %w", err)
	}
	if inProgress > 0 {
		return nil, ErrImportInProgress
	}

	rowsPerBatch := req.RowsPerBatch
	if rowsPerBatch <= 0 {
		rowsPerBatch = cast.ToInt(getEnvWithDefault("ROWS_PER_BATCH", "1000"))
	}

	var dataImport *models.DataImport
	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Subject
		err := tx.Where("release_id = ? AND name = ?", req.ReleaseID, req.SubjectName).
			First(&existing).Error
		if err == nil {
			if err := deleteSubjectCascade(tx, existing.ID); err != nil {
				return err
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询主体失败: %w", err)
		}

		subject := &models.Subject{
			ReleaseID: req.ReleaseID,
			Name:      req.SubjectName,
			Filename:  path.Base(req.DataFilePath),
		}
		if err := tx.Create(subject).Error; err != nil {
			return fmt.Errorf("创建主体失败: %w", err)
		}

		dataImport = &models.DataImport{
			SubjectID:    subject.ID,
			DataFilePath: req.DataFilePath,
			MetaFilePath: req.MetaFilePath,
			DataFileName: path.Base(req.DataFilePath),
			RowsPerBatch: rowsPerBatch,
			Status:       string(meta.ImportStatusQueued),
		}
		if err := tx.Create(dataImport).Error; err != nil {
			return fmt.Errorf("创建导入记录失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("导入已创建",
		"import_id", dataImport.ID,
		"subject", req.SubjectName,
		"data_file", req.DataFilePath)
	return dataImport, nil
}

// deleteSubjectCascade 删除主体及其全部附属数据（观测、筛选、指标），导入记录保留作审计
func deleteSubjectCascade(tx *gorm.DB, subjectID string) error {
	if err := tx.Exec(`DELETE FROM observation_filter_items WHERE observation_id IN
		(SELECT id FROM observations WHERE subject_id = ?)`, subjectID).Error; err != nil {
		return fmt.Errorf("删除观测筛选项关联失败: %w", err)
	}
	if err := tx.Where("subject_id = ?", subjectID).Delete(&models.Observation{}).Error; err != nil {
		return fmt.Errorf("删除观测数据失败: %w", err)
	}
	if err := tx.Exec(`DELETE FROM filter_items WHERE filter_group_id IN
		(SELECT fg.id FROM filter_groups fg JOIN filters f ON f.id = fg.filter_id WHERE f.subject_id = ?)`,
		subjectID).Error; err != nil {
		return fmt.Errorf("删除筛选项失败: %w", err)
	}
	if err := tx.Exec(`DELETE FROM filter_groups WHERE filter_id IN
		(SELECT id FROM filters WHERE subject_id = ?)`, subjectID).Error; err != nil {
		return fmt.Errorf("删除筛选分组失败: %w", err)
	}
	if err := tx.Where("subject_id = ?", subjectID).Delete(&models.Filter{}).Error; err != nil {
		return fmt.Errorf("删除筛选列失败: %w", err)
	}
	if err := tx.Exec(`DELETE FROM indicators WHERE indicator_group_id IN
		(SELECT id FROM indicator_groups WHERE subject_id = ?)`, subjectID).Error; err != nil {
		return fmt.Errorf("删除指标失败: %w", err)
	}
	if err := tx.Where("subject_id = ?", subjectID).Delete(&models.IndicatorGroup{}).Error; err != nil {
		return fmt.Errorf("删除指标分组失败: %w", err)
	}
	if err := tx.Where("id = ?", subjectID).Delete(&models.Subject{}).Error; err != nil {
		return fmt.Errorf("删除主体失败: %w", err)
	}
	return nil
}

// checkAborted 阶段间轮询：中止中则收尾为 CANCELLED
func (o *Orchestrator) checkAborted(ctx context.Context, importID string) (bool, error) {
	dataImport, err := o.statusService.GetImport(ctx, importID)
	if err != nil {
		return false, err
	}
	status := dataImport.ImportStatus()
	if status.IsFinished() {
		return true, nil
	}
	if status.IsAborting() {
		if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusCancelled, 100); err != nil {
			return true, err
		}
		slog.Info("导入已取消", "import_id", importID)
		return true, nil
	}
	return false, nil
}

// ProcessImport 驱动一次导入走完全部阶段
func (o *Orchestrator) ProcessImport(ctx context.Context, importID string) error {
	dataImport, err := o.statusService.GetImport(ctx, importID)
	if err != nil {
		return err
	}
	if stopped, err := o.checkAborted(ctx, importID); err != nil || stopped {
		return err
	}

	// 主体导入开始：清空身份缓存，避免跨主体泄漏
	o.cache.Clear()

	// 第一阶段：结构校验与总行数统计
	if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusStage1, 0); err != nil {
		return err
	}
	validation, err := o.validator.Validate(ctx, dataImport.DataFilePath, dataImport.MetaFilePath)
	if err != nil {
		return o.statusService.FailImport(ctx, importID, []string{err.Error()})
	}
	if len(validation.Errors) > 0 {
		return o.statusService.FailImport(ctx, importID, validation.Errors)
	}
	if err := o.db.WithContext(ctx).Model(&models.DataImport{}).
		Where("id = ?", importID).
		Update("total_rows", validation.TotalRows).Error; err != nil {
		return fmt.Errorf("持久化总行数失败: %w", err)
	}
	dataImport.TotalRows = validation.TotalRows
	if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusStage1, 100); err != nil {
		return err
	}

	if stopped, err := o.checkAborted(ctx, importID); err != nil || stopped {
		return err
	}

	// 第二阶段：元数据导入与筛选项/位置预扫描
	if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusStage2, 0); err != nil {
		return err
	}
	var subject models.Subject
	if err := o.db.WithContext(ctx).First(&subject, "id = ?", dataImport.SubjectID).Error; err != nil {
		return fmt.Errorf("读取主体失败: %w", err)
	}
	subjectMeta, err := o.metadataImporter.Import(ctx, &subject, dataImport.MetaFilePath)
	if err != nil {
		return o.statusService.FailImport(ctx, importID, []string{err.Error()})
	}
	if err := o.observationImporter.Prepass(ctx, dataImport, subjectMeta); err != nil {
		return o.statusService.FailImport(ctx, importID, []string{err.Error()})
	}
	if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusStage2, 100); err != nil {
		return err
	}

	if stopped, err := o.checkAborted(ctx, importID); err != nil || stopped {
		return err
	}

	// 第三阶段：文件切分
	if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusStage3, 0); err != nil {
		return err
	}
	if err := o.splitter.Split(ctx, dataImport); err != nil {
		return o.statusService.FailImport(ctx, importID, []string{err.Error()})
	}

	if stopped, err := o.checkAborted(ctx, importID); err != nil || stopped {
		return err
	}

	// 第四阶段：创建批次进度记录并分发批次任务
	if err := o.batchService.CreateImport(ctx, dataImport, dataImport.NumBatches); err != nil {
		return err
	}
	if err := o.statusService.UpdateStatus(ctx, importID, meta.ImportStatusStage4, 0); err != nil {
		return err
	}
	return o.dispatchBatches(ctx, dataImport)
}

// dispatchBatches 为每个未完成批次投递一条处理消息；无分发器时在本进程内顺序执行
func (o *Orchestrator) dispatchBatches(ctx context.Context, dataImport *models.DataImport) error {
	for batchNo := 1; batchNo <= dataImport.NumBatches; batchNo++ {
		record := &models.BatchRecord{}
		if err := o.db.WithContext(ctx).First(record, "import_id = ?", dataImport.ID).Error; err != nil {
			return fmt.Errorf("读取批次进度记录失败: %w", err)
		}
		done, err := record.IsBatchCompleted(batchNo)
		if err != nil {
			return err
		}
		if done {
			continue // 重启恢复：已完成的批次不重复投递
		}

		if o.dispatcher != nil {
			if err := o.dispatcher.DispatchBatch(ctx, dataImport.ID, batchNo, batchFilePath(dataImport, batchNo)); err != nil {
				return fmt.Errorf("投递批次任务失败 batch=%d: %w", batchNo, err)
			}
			continue
		}
		if err := o.observationImporter.ImportBatch(ctx, dataImport.ID, batchNo); err != nil {
			return err
		}
	}
	return nil
}

// ImportBatch 批次任务入口，由消息消费者调用
func (o *Orchestrator) ImportBatch(ctx context.Context, importID string, batchNo int) error {
	return o.observationImporter.ImportBatch(ctx, importID, batchNo)
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
