/*
 * @module service/importer/splitter
 * @description 导入第三阶段：把超大数据文件切分为带表头的有界批次文件，支持断点续切
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 计算批次数 -> 逐批读取写出 -> 每批推进进度 -> 已存在的批次文件跳过并快进源流
 * @rules 总行数不超过单批行数时不切分，整个文件即一个逻辑批次；
 *        每轮开始前轮询导入状态，已结束或中止中则提前退出
 * @dependencies gorm.io/gorm, service/storage, service/meta
 * @refs service/importer/orchestrator.go
 */

package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"

	"gorm.io/gorm"
)

// Splitter 数据文件切分器
type Splitter struct {
	db            *gorm.DB
	store         storage.BlobStore
	statusService *StatusService
}

// NewSplitter 创建切分器实例
func NewSplitter(db *gorm.DB, store storage.BlobStore, statusService *StatusService) *Splitter {
	return &Splitter{db: db, store: store, statusService: statusService}
}

// NumBatchesFor 计算批次数，向上取整
func NumBatchesFor(totalRows, rowsPerBatch int) int {
	if rowsPerBatch <= 0 || totalRows <= rowsPerBatch {
		return 1
	}
	return (totalRows + rowsPerBatch - 1) / rowsPerBatch
}

// Split 切分数据文件并持久化批次数
func (s *Splitter) Split(ctx context.Context, dataImport *models.DataImport) error {
	numBatches := NumBatchesFor(dataImport.TotalRows, dataImport.RowsPerBatch)
	if err := s.db.WithContext(ctx).Model(&models.DataImport{}).
		Where("id = ?", dataImport.ID).
		Update("num_batches", numBatches).Error; err != nil {
		return fmt.Errorf("持久化批次数失败: %w", err)
	}
	dataImport.NumBatches = numBatches

	if numBatches == 1 {
		// 不切分，整个文件即一个逻辑批次
		slog.Info("数据文件无需切分",
			"import_id", dataImport.ID,
			"total_rows", dataImport.TotalRows,
			"rows_per_batch", dataImport.RowsPerBatch)
		return s.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusStage3, 100)
	}

	reader, err := OpenCsv(ctx, s.store, dataImport.DataFilePath)
	if err != nil {
		return fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer reader.Close()

	for batchNo := 1; batchNo <= numBatches; batchNo++ {
		// 每轮开始前轮询状态，已结束或中止中则提前退出
		finished, err := s.statusService.IsFinishedOrAborting(ctx, dataImport.ID)
		if err != nil {
			return err
		}
		if finished {
			slog.Info("切分提前退出: 导入已结束或中止中", "import_id", dataImport.ID)
			return nil
		}

		batchPath := meta.BatchFileName(dataImport.DataFilePath, batchNo)
		exists, err := s.store.Exists(ctx, batchPath)
		if err != nil {
			return err
		}
		if exists {
			// 崩溃后续切：批次文件已存在，跳过写出并快进源流
			if err := s.skipRows(reader, dataImport.RowsPerBatch); err != nil {
				return err
			}
			slog.Debug("批次文件已存在，跳过", "import_id", dataImport.ID, "batch_no", batchNo)
		} else {
			if err := s.writeBatch(ctx, reader, batchPath, dataImport.RowsPerBatch); err != nil {
				return fmt.Errorf("写出批次文件失败 %s: %w", batchPath, err)
			}
		}

		percent := float64(batchNo) / float64(numBatches) * 100
		if err := s.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusStage3, percent); err != nil {
			return err
		}
	}
	return nil
}

// writeBatch 读取至多 rowsPerBatch 行数据，连同表头写出为一个批次文件
func (s *Splitter) writeBatch(ctx context.Context, reader *CsvReader, batchPath string, rowsPerBatch int) error {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(reader.Headers()); err != nil {
		return err
	}
	for i := 0; i < rowsPerBatch; i++ {
		record, _, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	return s.store.Write(ctx, batchPath, &buf, "text/csv")
}

// skipRows 快进源流指定行数
func (s *Splitter) skipRows(reader *CsvReader, rows int) error {
	for i := 0; i < rows; i++ {
		if _, _, err := reader.Read(); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
	return nil
}
