/*
 * @module service/models/indicator
 * @description 指标模型，描述被度量的数值列及其分组
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 元数据导入时一次性创建，之后不再变更
 * @rules 指标分组身份为 (SubjectID, Label)，指标身份为 (IndicatorGroupID, Label)
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/importer/metadata_importer.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IndicatorGroup 指标分组，缺失分组标签时落为 Default
type IndicatorGroup struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubjectID string    `json:"subject_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_indicator_group_label"`
	Label     string    `json:"label" gorm:"not null;size:255;uniqueIndex:idx_indicator_group_label" example:"Absence fields"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	Indicators []Indicator `json:"indicators,omitempty" gorm:"foreignKey:IndicatorGroupID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (g *IndicatorGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

// Indicator 指标，对应数据文件的一个数值列
type Indicator struct {
	ID               string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	IndicatorGroupID string    `json:"indicator_group_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_indicator_label"`
	Label            string    `json:"label" gorm:"not null;size:255;uniqueIndex:idx_indicator_label" example:"Number of overall absence sessions"`
	Name             string    `json:"name" gorm:"not null;size:255" example:"sess_overall"` // 数据文件中的列名
	Unit             string    `json:"unit" gorm:"size:50" example:"%"`
	DecimalPlaces    *int      `json:"decimal_places,omitempty"`
	CreatedAt        time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (i *Indicator) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
