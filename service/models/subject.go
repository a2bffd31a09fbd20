/*
 * @module service/models/subject
 * @description 数据集主体模型，一个主体对应一次发布中的一个可导入数据集版本
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 主体创建 -> 观测数据导入 -> 重新导入时整体替换
 * @rules 同一发布下主体名称唯一，唯一索引作为并发首次导入竞争的兜底
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/importer/orchestrator.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subject 数据集主体
type Subject struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	ReleaseID string    `json:"release_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_subject_release_name"`
	Name      string    `json:"name" gorm:"not null;size:255;uniqueIndex:idx_subject_release_name" example:"absence_by_characteristic"`
	Filename  string    `json:"filename" gorm:"not null;size:255"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// 关联关系
	Filters         []Filter         `json:"filters,omitempty" gorm:"foreignKey:SubjectID"`
	IndicatorGroups []IndicatorGroup `json:"indicator_groups,omitempty" gorm:"foreignKey:SubjectID"`
	Observations    []Observation    `json:"observations,omitempty" gorm:"foreignKey:SubjectID"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (s *Subject) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
