/*
 * @module service/importer/observation_importer
 * @description 导入第四阶段：按批次把数据行构建为观测实体并批量入库；
 *              同时承担第二阶段对全文件的筛选项/位置预扫描
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 解析行 -> 解析层级/时间 -> 解析位置与筛选项 -> 批量写入观测及关联 -> 标记批次完成
 * @rules 指标值按原始字符串收集不做数值校验；忽略层级的行直接丢弃不计入导入；
 *        单批次在一个事务内写入，中途失败不留半截批次；
 *        行级错误聚合记录后整批不写入，批次仍计入完成，收尾时按有无错误定成败
 * @dependencies gorm.io/gorm, service/storage, service/meta
 * @refs service/importer/orchestrator.go, service/importer/batch_service.go
 */

package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"

	"gorm.io/gorm"
)

// bulkInsertSize 批量写入的单次行数
const bulkInsertSize = 500

// prepassProgressEvery 预扫描阶段每处理多少行推进一次进度
const prepassProgressEvery = 1000

// ObservationImporter 观测数据导入器
type ObservationImporter struct {
	db               *gorm.DB
	store            storage.BlobStore
	cache            *ImporterCache
	statusService    *StatusService
	batchService     *BatchService
	metadataImporter *MetadataImporter
	locationResolver *LocationResolver
	filterResolver   *FilterResolver
	ignoredLevels    map[meta.GeographicLevel]bool
}

// NewObservationImporter 创建观测数据导入器实例
func NewObservationImporter(db *gorm.DB, store storage.BlobStore, cache *ImporterCache,
	statusService *StatusService, batchService *BatchService) *ObservationImporter {
	return &ObservationImporter{
		db:               db,
		store:            store,
		cache:            cache,
		statusService:    statusService,
		batchService:     batchService,
		metadataImporter: NewMetadataImporter(db, store),
		locationResolver: NewLocationResolver(db, cache),
		filterResolver:   NewFilterResolver(db, cache),
		ignoredLevels:    meta.IgnoredGeographicLevels(),
	}
}

// parsedRow 一行数据解析后的观测要素
type parsedRow struct {
	level          meta.GeographicLevel
	timeIdentifier meta.TimeIdentifier
	year           int
	location       *models.Location
	filterItemIDs  []string
	measures       models.JSONBStringMap
	ignored        bool
}

// parseRow 解析一行数据，解析失败返回带行号的行级错误
func (o *ObservationImporter) parseRow(ctx context.Context, reader *CsvReader, record []string,
	sourceRow int64, kind meta.DataFileKind, subjectMeta *SubjectMeta) (*parsedRow, error) {

	levelLabel := reader.Get(record, meta.DataColGeographicLevel)
	level, ok := meta.GeographicLevelFromLabel(levelLabel)
	if !ok {
		return nil, NewRowError(sourceRow, fmt.Errorf("%w: %q", ErrInvalidGeographicLevel, levelLabel))
	}
	if o.ignoredLevels[level] {
		return &parsedRow{ignored: true}, nil
	}

	tiLabel := reader.Get(record, meta.DataColTimeIdentifier)
	timeIdentifier, ok := meta.TimeIdentifierFromLabel(tiLabel)
	if !ok {
		return nil, NewRowError(sourceRow, fmt.Errorf("%w: %q", ErrInvalidTimeIdentifier, tiLabel))
	}

	timePeriod := reader.Get(record, meta.DataColTimePeriod)
	if len(timePeriod) < 4 {
		return nil, NewRowError(sourceRow, fmt.Errorf("%w: %q", ErrInvalidTimePeriod, timePeriod))
	}
	year, err := strconv.Atoi(timePeriod[:4])
	if err != nil {
		return nil, NewRowError(sourceRow, fmt.Errorf("%w: %q", ErrInvalidTimePeriod, timePeriod))
	}

	location, err := o.resolveLocation(ctx, reader, record, kind, level)
	if err != nil {
		return nil, err
	}

	filterItemIDs, err := o.resolveFilterItems(ctx, reader, record, subjectMeta)
	if err != nil {
		return nil, err
	}

	measures := make(models.JSONBStringMap, len(subjectMeta.IndicatorsByColumn))
	for column, indicator := range subjectMeta.IndicatorsByColumn {
		measures[indicator.ID] = reader.Get(record, column)
	}

	return &parsedRow{
		level:          level,
		timeIdentifier: timeIdentifier,
		year:           year,
		location:       location,
		filterItemIDs:  filterItemIDs,
		measures:       measures,
	}, nil
}

// resolveLocation 按文件种类和地理层级读取相关观测单元列并解析位置
func (o *ObservationImporter) resolveLocation(ctx context.Context, reader *CsvReader, record []string,
	kind meta.DataFileKind, level meta.GeographicLevel) (*models.Location, error) {

	units := kind.UnitsFor(level)
	attrs := make([]LocationAttribute, 0, len(units))
	for _, unit := range units {
		columns := meta.ObservationalUnitColumns[unit]
		attr := LocationAttribute{
			Unit: unit,
			Code: reader.Get(record, columns[0]),
			Name: reader.Get(record, columns[1]),
		}
		if unit == meta.UnitLocalAuthority {
			attr.OldCode = reader.Get(record, meta.LocalAuthorityOldCodeColumn)
		}
		attrs = append(attrs, attr)
	}
	return o.locationResolver.Find(ctx, level, attrs)
}

// resolveFilterItems 解析行内每个筛选列的筛选项
func (o *ObservationImporter) resolveFilterItems(ctx context.Context, reader *CsvReader, record []string,
	subjectMeta *SubjectMeta) ([]string, error) {

	itemIDs := make([]string, 0, len(subjectMeta.FiltersByColumn))
	for column, filter := range subjectMeta.FiltersByColumn {
		itemLabel := reader.Get(record, column)
		groupLabel := ""
		if groupingColumn, ok := subjectMeta.FilterGroupingColumns[column]; ok {
			groupLabel = reader.Get(record, groupingColumn)
		}
		item, err := o.filterResolver.FindFilterItem(ctx, itemLabel, groupLabel, filter)
		if err != nil {
			return nil, err
		}
		itemIDs = append(itemIDs, item.ID)
	}
	return itemIDs, nil
}

// Prepass 第二阶段预扫描：遍历全文件解析筛选项和位置，
// 预先填充库和缓存，避免后续并行批次竞争创建同一参照实体
func (o *ObservationImporter) Prepass(ctx context.Context, dataImport *models.DataImport,
	subjectMeta *SubjectMeta) error {

	reader, err := OpenCsv(ctx, o.store, dataImport.DataFilePath)
	if err != nil {
		return err
	}
	defer reader.Close()

	kind := meta.DetectDataFileKind(reader.Headers())
	observedLevels := make(map[meta.GeographicLevel]bool)
	processed := 0

	for {
		record, csvRow, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("第 %d 行解析失败: %w", csvRow, err)
		}

		levelLabel := reader.Get(record, meta.DataColGeographicLevel)
		level, ok := meta.GeographicLevelFromLabel(levelLabel)
		if !ok {
			return NewRowError(csvRow, fmt.Errorf("%w: %q", ErrInvalidGeographicLevel, levelLabel))
		}
		observedLevels[level] = true
		if o.ignoredLevels[level] {
			continue
		}

		if _, err := o.resolveLocation(ctx, reader, record, kind, level); err != nil {
			return err
		}
		if _, err := o.resolveFilterItems(ctx, reader, record, subjectMeta); err != nil {
			return err
		}

		processed++
		if processed%prepassProgressEvery == 0 {
			finished, err := o.statusService.IsFinishedOrAborting(ctx, dataImport.ID)
			if err != nil {
				return err
			}
			if finished {
				slog.Info("预扫描提前退出: 导入已结束或中止中", "import_id", dataImport.ID)
				return nil
			}
			percent := float64(processed) / float64(dataImport.TotalRows) * 100
			if err := o.statusService.UpdateStatus(ctx, dataImport.ID, meta.ImportStatusStage2, percent); err != nil {
				return err
			}
		}
	}

	levels := make(models.JSONBStringArray, 0, len(observedLevels))
	for level := range observedLevels {
		levels = append(levels, string(level))
	}
	if err := o.db.WithContext(ctx).Model(&models.DataImport{}).
		Where("id = ?", dataImport.ID).
		Update("geographic_levels", levels).Error; err != nil {
		return fmt.Errorf("持久化地理层级集合失败: %w", err)
	}
	return nil
}

// batchFilePath 批次文件路径，单批次时即源文件
func batchFilePath(dataImport *models.DataImport, batchNo int) string {
	if dataImport.NumBatches <= 1 {
		return dataImport.DataFilePath
	}
	return meta.BatchFileName(dataImport.DataFilePath, batchNo)
}

// ImportBatch 导入一个批次的观测数据
// 行级错误聚合后整批失败；成功时单事务写入观测及筛选项关联，再标记批次完成
func (o *ObservationImporter) ImportBatch(ctx context.Context, importID string, batchNo int) error {
	dataImport, err := o.statusService.GetImport(ctx, importID)
	if err != nil {
		return err
	}
	// 开始昂贵工作前轮询状态，已结束或中止中则静默退出
	if dataImport.ImportStatus().IsFinished() || dataImport.ImportStatus().IsAborting() {
		slog.Info("批次跳过: 导入已结束或中止中",
			"import_id", importID, "batch_no", batchNo)
		return nil
	}

	var subject models.Subject
	if err := o.db.WithContext(ctx).First(&subject, "id = ?", dataImport.SubjectID).Error; err != nil {
		return fmt.Errorf("读取主体失败: %w", err)
	}
	subjectMeta, err := o.metadataImporter.Import(ctx, &subject, dataImport.MetaFilePath)
	if err != nil {
		return o.batchService.FailImport(ctx, importID, []string{err.Error()})
	}

	reader, err := OpenCsv(ctx, o.store, batchFilePath(dataImport, batchNo))
	if err != nil {
		return o.batchService.FailImport(ctx, importID, []string{err.Error()})
	}
	defer reader.Close()

	kind := meta.DetectDataFileKind(reader.Headers())

	// 批次文件首个数据行在源文件中的行号（表头占第1行）
	sourceRowBase := int64(batchNo-1)*int64(dataImport.RowsPerBatch) + 2

	var observations []*models.Observation
	var joinRows []models.ObservationFilterItem
	var rowErrors []string

	for {
		record, csvRow, err := reader.Read()
		if err == io.EOF {
			break
		}
		sourceRow := sourceRowBase + csvRow - 2
		if err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("第 %d 行解析失败: %v", sourceRow, err))
			continue
		}

		parsed, err := o.parseRow(ctx, reader, record, sourceRow, kind, subjectMeta)
		if err != nil {
			rowErrors = append(rowErrors, err.Error())
			continue
		}
		if parsed.ignored {
			continue
		}

		observation := &models.Observation{
			SubjectID:       subject.ID,
			LocationID:      parsed.location.ID,
			GeographicLevel: string(parsed.level),
			Year:            parsed.year,
			TimeIdentifier:  parsed.timeIdentifier.Code,
			Measures:        parsed.measures,
			CsvRow:          sourceRow,
		}
		observations = append(observations, observation)
		for _, itemID := range parsed.filterItemIDs {
			// ObservationID 在事务内创建观测后回填
			joinRows = append(joinRows, models.ObservationFilterItem{FilterItemID: itemID})
		}
	}

	if len(rowErrors) > 0 {
		// 行级错误聚合记录，整批不写入；批次仍计入完成，待全部批次退出后统一收尾为失败
		if err := o.batchService.RecordErrors(ctx, importID, rowErrors); err != nil {
			return err
		}
		return o.batchService.MarkBatchComplete(ctx, dataImport, batchNo)
	}

	if err := o.bulkInsert(ctx, observations, subjectMeta, joinRows); err != nil {
		// 事务已回滚，不留半截批次，整个导入置失败
		return o.batchService.FailImport(ctx, importID,
			[]string{fmt.Sprintf("批次 %d 批量写入失败: %v", batchNo, err)})
	}

	return o.batchService.MarkBatchComplete(ctx, dataImport, batchNo)
}

// bulkInsert 单事务内批量写入观测及其筛选项关联
func (o *ObservationImporter) bulkInsert(ctx context.Context, observations []*models.Observation,
	subjectMeta *SubjectMeta, joinRows []models.ObservationFilterItem) error {

	if len(observations) == 0 {
		return nil
	}
	itemsPerObservation := len(subjectMeta.FiltersByColumn)

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(observations, bulkInsertSize).Error; err != nil {
			return err
		}

		// 观测创建后按固定步长回填关联表中的观测ID
		if itemsPerObservation > 0 {
			for i := range joinRows {
				joinRows[i].ObservationID = observations[i/itemsPerObservation].ID
			}
			if err := tx.CreateInBatches(joinRows, bulkInsertSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
