/*
 * @module service/scheduler/import_watchdog
 * @description 导入看门狗，定时巡检卡滞的导入并收尾
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 启动cron -> 每分钟巡检 -> 位图已满但状态未收尾的导入补收尾 -> 中止中的导入置为取消
 * @rules 多实例环境下巡检在分布式锁保护下执行，同一时刻只有一个实例收尾
 * @dependencies github.com/robfig/cron/v3, service/distributed_lock
 * @refs service/importer/batch_service.go, service/importer/status_service.go
 */

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"statistics-import-service/service/distributed_lock"
	"statistics-import-service/service/importer"
	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// watchdogLockKey 看门狗巡检的分布式锁键
const watchdogLockKey = "import_watchdog"

// ImportWatchdog 导入看门狗
// 批次任务在写完位图后、推进状态前崩溃时，位图已满但导入状态停在 STAGE_4，
// 看门狗负责补上收尾；中止中的导入在所有批次退出后也由看门狗置为取消
type ImportWatchdog struct {
	db            *gorm.DB
	statusService *importer.StatusService
	batchService  *importer.BatchService
	executor      *distributed_lock.LockExecutor
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	started       bool
}

// NewImportWatchdog 创建导入看门狗实例
func NewImportWatchdog(db *gorm.DB, statusService *importer.StatusService,
	batchService *importer.BatchService, executor *distributed_lock.LockExecutor) *ImportWatchdog {
	ctx, cancel := context.WithCancel(context.Background())
	return &ImportWatchdog{
		db:            db,
		statusService: statusService,
		batchService:  batchService,
		executor:      executor,
		cron:          cron.New(),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start 启动看门狗，每分钟巡检一次
func (w *ImportWatchdog) Start() error {
	if w.started {
		return fmt.Errorf("看门狗已经启动")
	}

	_, err := w.cron.AddFunc("* * * * *", func() {
		err := w.executor.ExecuteWithLock(w.ctx, watchdogLockKey, 50*time.Second, func() error {
			return w.sweep(w.ctx)
		})
		if err != nil {
			slog.Error("导入看门狗巡检失败", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("注册巡检任务失败: %w", err)
	}

	w.cron.Start()
	w.started = true
	slog.Info("导入看门狗已启动")
	return nil
}

// Stop 停止看门狗
func (w *ImportWatchdog) Stop() {
	if !w.started {
		return
	}
	w.cancel()
	w.cron.Stop()
	w.started = false
	slog.Info("导入看门狗已停止")
}

// sweep 一轮巡检
func (w *ImportWatchdog) sweep(ctx context.Context) error {
	var imports []models.DataImport
	err := w.db.WithContext(ctx).
		Where("status IN ?", []string{string(meta.ImportStatusStage4), string(meta.ImportStatusAborting)}).
		Find(&imports).Error
	if err != nil {
		return fmt.Errorf("查询待巡检导入失败: %w", err)
	}

	for i := range imports {
		dataImport := &imports[i]
		switch dataImport.ImportStatus() {
		case meta.ImportStatusAborting:
			// 中止中的导入：批次任务发现中止后会静默退出，这里统一收尾为取消
			if err := w.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusCancelled, 100); err != nil {
				slog.Error("收尾取消导入失败", "import_id", dataImport.ID, "error", err)
			}

		case meta.ImportStatusStage4:
			complete, err := w.batchService.IsComplete(ctx, dataImport.ID)
			if err != nil {
				continue // 批次记录还没创建，不算异常
			}
			if !complete {
				continue
			}
			slog.Warn("发现位图已满但未收尾的导入，补收尾", "import_id", dataImport.ID)
			// 批次错误在收尾前只存在于批次记录上，收尾成败以批次记录为准
			batchErrors, err := w.batchService.GetErrors(ctx, dataImport.ID)
			if err != nil {
				slog.Error("读取批次错误失败", "import_id", dataImport.ID, "error", err)
				continue
			}
			if len(batchErrors) == 0 {
				err = w.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusComplete, 100)
			} else {
				err = w.statusService.FailImport(ctx, dataImport.ID, batchErrors)
			}
			if err != nil {
				slog.Error("补收尾失败", "import_id", dataImport.ID, "error", err)
			}
		}
	}
	return nil
}
