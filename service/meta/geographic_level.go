/*
 * @module service/meta/geographic_level
 * @description 地理层级元数据定义，包括层级枚举、标签匹配和观测单元列绑定
 * @architecture 元数据层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 静态元数据定义
 * @rules 标签匹配不区分大小写，未知标签视为行级错误
 * @dependencies 无
 * @refs service/importer/observation_importer.go, service/importer/location_resolver.go
 */

package meta

import (
	"os"
	"strings"
)

// GeographicLevel 地理层级
type GeographicLevel string

const (
	GeographicLevelNational                  GeographicLevel = "National"
	GeographicLevelRegional                  GeographicLevel = "Regional"
	GeographicLevelLocalAuthority            GeographicLevel = "Local Authority"
	GeographicLevelLocalAuthorityDistrict    GeographicLevel = "Local Authority District"
	GeographicLevelRscRegion                 GeographicLevel = "RSC Region"
	GeographicLevelParliamentaryConstituency GeographicLevel = "Parliamentary Constituency"
	GeographicLevelWard                      GeographicLevel = "Ward"
	GeographicLevelOpportunityArea           GeographicLevel = "Opportunity Area"
	GeographicLevelSponsor                   GeographicLevel = "Sponsor"
	GeographicLevelInstitution               GeographicLevel = "Institution"
	GeographicLevelProvider                  GeographicLevel = "Provider"
	GeographicLevelSchool                    GeographicLevel = "School"
	GeographicLevelPlanningArea              GeographicLevel = "Planning Area"
)

// GeographicLevels 全部地理层级
var GeographicLevels = []GeographicLevel{
	GeographicLevelNational,
	GeographicLevelRegional,
	GeographicLevelLocalAuthority,
	GeographicLevelLocalAuthorityDistrict,
	GeographicLevelRscRegion,
	GeographicLevelParliamentaryConstituency,
	GeographicLevelWard,
	GeographicLevelOpportunityArea,
	GeographicLevelSponsor,
	GeographicLevelInstitution,
	GeographicLevelProvider,
	GeographicLevelSchool,
	GeographicLevelPlanningArea,
}

var geographicLevelByLabel = func() map[string]GeographicLevel {
	m := make(map[string]GeographicLevel, len(GeographicLevels))
	for _, level := range GeographicLevels {
		m[strings.ToLower(string(level))] = level
	}
	return m
}()

// GeographicLevelFromLabel 按标签解析地理层级，不区分大小写
func GeographicLevelFromLabel(label string) (GeographicLevel, bool) {
	level, ok := geographicLevelByLabel[strings.ToLower(strings.TrimSpace(label))]
	return level, ok
}

// defaultIgnoredLevels 默认不参与聚合的地理层级，对应的数据行不导入
var defaultIgnoredLevels = []GeographicLevel{
	GeographicLevelInstitution,
	GeographicLevelPlanningArea,
	GeographicLevelProvider,
	GeographicLevelSchool,
}

// IgnoredGeographicLevels 返回配置的忽略层级集合
// 可通过环境变量 IGNORED_GEOGRAPHIC_LEVELS 覆盖，逗号分隔
func IgnoredGeographicLevels() map[GeographicLevel]bool {
	ignored := make(map[GeographicLevel]bool)
	if raw := os.Getenv("IGNORED_GEOGRAPHIC_LEVELS"); raw != "" {
		for _, label := range strings.Split(raw, ",") {
			if level, ok := GeographicLevelFromLabel(label); ok {
				ignored[level] = true
			}
		}
		return ignored
	}
	for _, level := range defaultIgnoredLevels {
		ignored[level] = true
	}
	return ignored
}
