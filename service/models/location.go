/*
 * @module service/models/location
 * @description 地理位置模型，按出现过的观测单元子属性去重共享
 * @architecture DDD领域驱动设计 - 实体模型
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 位置创建后不再变更，被多条观测数据引用
 * @rules 缺失的子属性统一落为空字符串哨兵值，保证相等性比较总是可判定
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/importer/location_resolver.go
 */

package models

import (
	"time"

	"statistics-import-service/service/meta"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Location 去重后的地理位置实体
// 每个观测单元携带代码列和名称列，本地当局额外携带旧代码
type Location struct {
	ID              string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	GeographicLevel string `json:"geographic_level" gorm:"not null;size:50;index" example:"Local Authority"`

	CountryCode string `json:"country_code" gorm:"not null;size:50;default:''"`
	CountryName string `json:"country_name" gorm:"not null;size:255;default:''"`

	RegionCode string `json:"region_code" gorm:"not null;size:50;default:''"`
	RegionName string `json:"region_name" gorm:"not null;size:255;default:''"`

	OldLaCode string `json:"old_la_code" gorm:"not null;size:50;default:''"`
	NewLaCode string `json:"new_la_code" gorm:"not null;size:50;default:''"`
	LaName    string `json:"la_name" gorm:"not null;size:255;default:''"`

	LadCode string `json:"lad_code" gorm:"not null;size:50;default:''"`
	LadName string `json:"lad_name" gorm:"not null;size:255;default:''"`

	RscRegionLeadCode string `json:"rsc_region_lead_code" gorm:"not null;size:50;default:''"`
	RscRegionLeadName string `json:"rsc_region_lead_name" gorm:"not null;size:255;default:''"`

	PconCode string `json:"pcon_code" gorm:"not null;size:50;default:''"`
	PconName string `json:"pcon_name" gorm:"not null;size:255;default:''"`

	WardCode string `json:"ward_code" gorm:"not null;size:50;default:''"`
	WardName string `json:"ward_name" gorm:"not null;size:255;default:''"`

	OpportunityAreaCode string `json:"opportunity_area_code" gorm:"not null;size:50;default:''"`
	OpportunityAreaName string `json:"opportunity_area_name" gorm:"not null;size:255;default:''"`

	SponsorID   string `json:"sponsor_id" gorm:"not null;size:50;default:''"`
	SponsorName string `json:"sponsor_name" gorm:"not null;size:255;default:''"`

	InstitutionID   string `json:"institution_id" gorm:"not null;size:50;default:''"`
	InstitutionName string `json:"institution_name" gorm:"not null;size:255;default:''"`

	ProviderUrn  string `json:"provider_urn" gorm:"not null;size:50;default:''"`
	ProviderName string `json:"provider_name" gorm:"not null;size:255;default:''"`

	SchoolUrn  string `json:"school_urn" gorm:"not null;size:50;default:''"`
	SchoolName string `json:"school_name" gorm:"not null;size:255;default:''"`

	PlanningAreaCode string `json:"planning_area_code" gorm:"not null;size:50;default:''"`
	PlanningAreaName string `json:"planning_area_name" gorm:"not null;size:255;default:''"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (l *Location) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// unitFields 观测单元到 (代码字段指针, 名称字段指针) 的映射
func (l *Location) unitFields(unit meta.ObservationalUnit) (code *string, name *string) {
	switch unit {
	case meta.UnitCountry:
		return &l.CountryCode, &l.CountryName
	case meta.UnitRegion:
		return &l.RegionCode, &l.RegionName
	case meta.UnitLocalAuthority:
		return &l.NewLaCode, &l.LaName
	case meta.UnitLocalAuthorityDistrict:
		return &l.LadCode, &l.LadName
	case meta.UnitRscRegion:
		return &l.RscRegionLeadCode, &l.RscRegionLeadName
	case meta.UnitParliamentaryConstituency:
		return &l.PconCode, &l.PconName
	case meta.UnitWard:
		return &l.WardCode, &l.WardName
	case meta.UnitOpportunityArea:
		return &l.OpportunityAreaCode, &l.OpportunityAreaName
	case meta.UnitSponsor:
		return &l.SponsorID, &l.SponsorName
	case meta.UnitInstitution:
		return &l.InstitutionID, &l.InstitutionName
	case meta.UnitProvider:
		return &l.ProviderUrn, &l.ProviderName
	case meta.UnitSchool:
		return &l.SchoolUrn, &l.SchoolName
	case meta.UnitPlanningArea:
		return &l.PlanningAreaCode, &l.PlanningAreaName
	}
	return nil, nil
}

// SetUnit 写入指定观测单元的代码和名称
func (l *Location) SetUnit(unit meta.ObservationalUnit, code, name string) {
	codeField, nameField := l.unitFields(unit)
	if codeField != nil {
		*codeField = code
		*nameField = name
	}
}

// UnitCode 读取指定观测单元的代码
func (l *Location) UnitCode(unit meta.ObservationalUnit) string {
	codeField, _ := l.unitFields(unit)
	if codeField == nil {
		return ""
	}
	return *codeField
}

// UnitName 读取指定观测单元的名称
func (l *Location) UnitName(unit meta.ObservationalUnit) string {
	_, nameField := l.unitFields(unit)
	if nameField == nil {
		return ""
	}
	return *nameField
}
