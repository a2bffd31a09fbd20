/*
 * @module service/models/observation
 * @description 观测数据模型，一条记录对应数据文件的一行事实
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 按批次批量创建，创建后不可变
 * @rules 指标值按原始字符串存储，不做数值校验；CsvRow 保留源文件行号用于错误定位
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/importer/observation_importer.go
 */

package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Observation 一条观测事实
type Observation struct {
	ID              string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubjectID       string         `json:"subject_id" gorm:"not null;type:varchar(36);index"`
	LocationID      string         `json:"location_id" gorm:"not null;type:varchar(36);index"`
	GeographicLevel string         `json:"geographic_level" gorm:"not null;size:50" example:"Local Authority"`
	Year            int            `json:"year" gorm:"not null" example:"2023"`
	TimeIdentifier  string         `json:"time_identifier" gorm:"not null;size:50" example:"AY"`
	Measures        JSONBStringMap `json:"measures" gorm:"type:jsonb"` // 指标ID -> 原始值
	CsvRow          int64          `json:"csv_row" gorm:"not null"`    // 源数据文件中的行号

	// 关联关系
	Location    *Location               `json:"location,omitempty" gorm:"foreignKey:LocationID"`
	FilterItems []ObservationFilterItem `json:"filter_items,omitempty" gorm:"foreignKey:ObservationID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (o *Observation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}
