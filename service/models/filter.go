/*
 * @module service/models/filter
 * @description 筛选维度模型，包括筛选列、筛选分组、筛选项和观测数据关联表
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 元数据导入时创建筛选列，预扫描阶段创建分组和筛选项，之后不再变更
 * @rules 分组身份为 (FilterID, Label)，筛选项身份为 (FilterGroupID, Label)
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/importer/filter_resolver.go, service/importer/metadata_importer.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Filter 筛选列，对应数据文件的一个分类列
type Filter struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SubjectID string    `json:"subject_id" gorm:"not null;type:varchar(36);index"`
	Label     string    `json:"label" gorm:"not null;size:255" example:"Characteristic"`
	Name      string    `json:"name" gorm:"not null;size:255" example:"characteristic"` // 数据文件中的列名
	Hint      string    `json:"hint" gorm:"size:1000"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	FilterGroups []FilterGroup `json:"filter_groups,omitempty" gorm:"foreignKey:FilterID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (f *Filter) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}

// FilterGroup 筛选分组，缺失分组标签时落为 Default
type FilterGroup struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FilterID  string    `json:"filter_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_filter_group_label"`
	Label     string    `json:"label" gorm:"not null;size:255;uniqueIndex:idx_filter_group_label" example:"Ethnicity major"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	FilterItems []FilterItem `json:"filter_items,omitempty" gorm:"foreignKey:FilterGroupID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (g *FilterGroup) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	return nil
}

// FilterItem 筛选项叶子值，缺失标签时落为 Not specified
type FilterItem struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	FilterGroupID string    `json:"filter_group_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_filter_item_label"`
	Label         string    `json:"label" gorm:"not null;size:255;uniqueIndex:idx_filter_item_label" example:"White British"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (i *FilterItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// ObservationFilterItem 观测数据与筛选项的关联表，随批次批量写入
type ObservationFilterItem struct {
	ObservationID string `json:"observation_id" gorm:"primaryKey;type:varchar(36)"`
	FilterItemID  string `json:"filter_item_id" gorm:"primaryKey;type:varchar(36);index"`
}
