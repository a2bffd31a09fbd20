/*
 * @module service/meta/meta_file
 * @description 元数据文件列定义，以及数据文件的保留列和默认标签
 * @architecture 元数据层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 静态元数据定义
 * @rules 元数据文件每行描述数据文件的一列，列类型仅支持 Filter 和 Indicator
 * @dependencies 无
 * @refs service/importer/metadata_importer.go, service/importer/validator.go
 */

package meta

import "strings"

// ColumnType 元数据文件中描述的列类型
type ColumnType string

const (
	ColumnTypeFilter    ColumnType = "Filter"
	ColumnTypeIndicator ColumnType = "Indicator"
)

// ColumnTypeFromLabel 解析列类型，不区分大小写
func ColumnTypeFromLabel(label string) (ColumnType, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "filter":
		return ColumnTypeFilter, true
	case "indicator":
		return ColumnTypeIndicator, true
	}
	return "", false
}

// 元数据文件的固定表头
const (
	MetaColName            = "col_name"
	MetaColType            = "col_type"
	MetaColLabel           = "label"
	MetaColFilterGrouping  = "filter_grouping_column"
	MetaColFilterHint      = "filter_hint"
	MetaColIndicatorGroup  = "indicator_grouping"
	MetaColIndicatorUnit   = "indicator_unit"
	MetaColIndicatorDp     = "indicator_dp"
)

// MetaFileColumns 元数据文件表头的期望顺序
var MetaFileColumns = []string{
	MetaColName,
	MetaColType,
	MetaColLabel,
	MetaColFilterGrouping,
	MetaColFilterHint,
	MetaColIndicatorGroup,
	MetaColIndicatorUnit,
	MetaColIndicatorDp,
}

// 数据文件的保留列
const (
	DataColTimePeriod      = "time_period"
	DataColTimeIdentifier  = "time_identifier"
	DataColGeographicLevel = "geographic_level"
)

// 缺省标签
const (
	DefaultFilterGroupLabel    = "Default"
	DefaultFilterItemLabel     = "Not specified"
	DefaultIndicatorGroupLabel = "Default"
)
