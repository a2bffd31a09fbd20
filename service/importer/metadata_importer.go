/*
 * @module service/importer/metadata_importer
 * @description 导入第二阶段：解析元数据文件，为主体创建筛选列和指标定义
 * @architecture 分层架构 - 数据处理层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 解析元数据行 -> 分类为筛选列/指标 -> 按主体幂等落库 -> 返回列到实体映射
 * @rules 主体已存在筛选列或指标时跳过创建直接取回，保证重复执行幂等
 * @dependencies gorm.io/gorm, github.com/spf13/cast
 * @refs service/importer/orchestrator.go, service/importer/observation_importer.go
 */

package importer

import (
	"context"
	"fmt"
	"io"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// SubjectMeta 元数据导入结果，观测构建器据此知道每个 CSV 列喂给哪个实体
type SubjectMeta struct {
	// FiltersByColumn 数据文件列名 -> 筛选列
	FiltersByColumn map[string]*models.Filter
	// FilterGroupingColumns 筛选列名 -> 分组列名
	FilterGroupingColumns map[string]string
	// IndicatorsByColumn 数据文件列名 -> 指标
	IndicatorsByColumn map[string]*models.Indicator
}

// MetadataImporter 元数据导入器
type MetadataImporter struct {
	db    *gorm.DB
	store storage.BlobStore
}

// NewMetadataImporter 创建元数据导入器实例
func NewMetadataImporter(db *gorm.DB, store storage.BlobStore) *MetadataImporter {
	return &MetadataImporter{db: db, store: store}
}

// metaRow 元数据文件的一行
type metaRow struct {
	colName        string
	colType        meta.ColumnType
	label          string
	groupingColumn string
	hint           string
	indicatorGroup string
	indicatorUnit  string
	indicatorDp    *int
}

// parseMetaFile 解析元数据文件的全部行
func (m *MetadataImporter) parseMetaFile(ctx context.Context, metaFilePath string) ([]metaRow, error) {
	reader, err := OpenCsv(ctx, m.store, metaFilePath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var rows []metaRow
	for {
		record, csvRow, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("元数据文件第 %d 行解析失败: %w", csvRow, err)
		}

		colType, ok := meta.ColumnTypeFromLabel(reader.Get(record, meta.MetaColType))
		if !ok {
			return nil, fmt.Errorf("元数据文件第 %d 行列类型无效: %s", csvRow, reader.Get(record, meta.MetaColType))
		}

		row := metaRow{
			colName:        reader.Get(record, meta.MetaColName),
			colType:        colType,
			label:          reader.Get(record, meta.MetaColLabel),
			groupingColumn: reader.Get(record, meta.MetaColFilterGrouping),
			hint:           reader.Get(record, meta.MetaColFilterHint),
			indicatorGroup: reader.Get(record, meta.MetaColIndicatorGroup),
			indicatorUnit:  reader.Get(record, meta.MetaColIndicatorUnit),
		}
		if raw := reader.Get(record, meta.MetaColIndicatorDp); raw != "" {
			dp := cast.ToInt(raw)
			row.indicatorDp = &dp
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Import 导入主体的元数据定义，已导入时直接取回现有定义
func (m *MetadataImporter) Import(ctx context.Context, subject *models.Subject, metaFilePath string) (*SubjectMeta, error) {
	rows, err := m.parseMetaFile(ctx, metaFilePath)
	if err != nil {
		return nil, err
	}

	var existingFilters int64
	if err := m.db.WithContext(ctx).Model(&models.Filter{}).
		Where("subject_id = ?", subject.ID).
		Count(&existingFilters).Error; err != nil {
		return nil, fmt.Errorf("查询已有筛选列失败: %w", err)
	}
	if existingFilters > 0 {
		// 重复执行：不再创建，取回已有定义
		return m.fetchExisting(ctx, subject, rows)
	}
	return m.create(ctx, subject, rows)
}

// create 首次导入，创建筛选列、指标分组和指标
func (m *MetadataImporter) create(ctx context.Context, subject *models.Subject, rows []metaRow) (*SubjectMeta, error) {
	result := newSubjectMeta()
	indicatorGroups := make(map[string]*models.IndicatorGroup)

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			switch row.colType {
			case meta.ColumnTypeFilter:
				filter := &models.Filter{
					SubjectID: subject.ID,
					Label:     row.label,
					Name:      row.colName,
					Hint:      row.hint,
				}
				if err := tx.Create(filter).Error; err != nil {
					return fmt.Errorf("创建筛选列失败 %s: %w", row.colName, err)
				}
				result.FiltersByColumn[row.colName] = filter
				if row.groupingColumn != "" {
					result.FilterGroupingColumns[row.colName] = row.groupingColumn
				}

			case meta.ColumnTypeIndicator:
				groupLabel := row.indicatorGroup
				if groupLabel == "" {
					groupLabel = meta.DefaultIndicatorGroupLabel
				}
				group, ok := indicatorGroups[groupLabel]
				if !ok {
					group = &models.IndicatorGroup{
						SubjectID: subject.ID,
						Label:     groupLabel,
					}
					if err := tx.Create(group).Error; err != nil {
						return fmt.Errorf("创建指标分组失败 %s: %w", groupLabel, err)
					}
					indicatorGroups[groupLabel] = group
				}

				indicator := &models.Indicator{
					IndicatorGroupID: group.ID,
					Label:            row.label,
					Name:             row.colName,
					Unit:             row.indicatorUnit,
					DecimalPlaces:    row.indicatorDp,
				}
				if err := tx.Create(indicator).Error; err != nil {
					return fmt.Errorf("创建指标失败 %s: %w", row.colName, err)
				}
				result.IndicatorsByColumn[row.colName] = indicator
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// fetchExisting 取回主体已有的筛选列和指标定义
func (m *MetadataImporter) fetchExisting(ctx context.Context, subject *models.Subject, rows []metaRow) (*SubjectMeta, error) {
	result := newSubjectMeta()

	var filters []models.Filter
	if err := m.db.WithContext(ctx).
		Where("subject_id = ?", subject.ID).
		Find(&filters).Error; err != nil {
		return nil, fmt.Errorf("取回筛选列失败: %w", err)
	}
	filtersByName := make(map[string]*models.Filter, len(filters))
	for i := range filters {
		filtersByName[filters[i].Name] = &filters[i]
	}

	var indicators []models.Indicator
	if err := m.db.WithContext(ctx).
		Joins("JOIN indicator_groups ON indicator_groups.id = indicators.indicator_group_id").
		Where("indicator_groups.subject_id = ?", subject.ID).
		Find(&indicators).Error; err != nil {
		return nil, fmt.Errorf("取回指标失败: %w", err)
	}
	indicatorsByName := make(map[string]*models.Indicator, len(indicators))
	for i := range indicators {
		indicatorsByName[indicators[i].Name] = &indicators[i]
	}

	for _, row := range rows {
		switch row.colType {
		case meta.ColumnTypeFilter:
			if filter, ok := filtersByName[row.colName]; ok {
				result.FiltersByColumn[row.colName] = filter
			}
			if row.groupingColumn != "" {
				result.FilterGroupingColumns[row.colName] = row.groupingColumn
			}
		case meta.ColumnTypeIndicator:
			if indicator, ok := indicatorsByName[row.colName]; ok {
				result.IndicatorsByColumn[row.colName] = indicator
			}
		}
	}
	return result, nil
}

func newSubjectMeta() *SubjectMeta {
	return &SubjectMeta{
		FiltersByColumn:       make(map[string]*models.Filter),
		FilterGroupingColumns: make(map[string]string),
		IndicatorsByColumn:    make(map[string]*models.Indicator),
	}
}
