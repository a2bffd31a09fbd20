/*
 * @module service/models/location_test
 * @description 位置实体观测单元读写单元测试
 * @architecture 测试层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 写入观测单元 -> 按单元读回代码和名称
 * @rules 覆盖全部观测单元的字段映射和未知单元的空值语义
 * @dependencies testing, testify
 * @refs location.go
 */

package models

import (
	"testing"

	"statistics-import-service/service/meta"

	"github.com/stretchr/testify/assert"
)

func TestLocationUnitRoundTrip(t *testing.T) {
	units := []meta.ObservationalUnit{
		meta.UnitCountry,
		meta.UnitRegion,
		meta.UnitLocalAuthority,
		meta.UnitLocalAuthorityDistrict,
		meta.UnitRscRegion,
		meta.UnitParliamentaryConstituency,
		meta.UnitWard,
		meta.UnitOpportunityArea,
		meta.UnitSponsor,
		meta.UnitInstitution,
		meta.UnitProvider,
		meta.UnitSchool,
		meta.UnitPlanningArea,
	}

	location := &Location{}
	for i, unit := range units {
		location.SetUnit(unit, string(rune('A'+i)), "名称"+string(unit))
	}
	for i, unit := range units {
		assert.Equal(t, string(rune('A'+i)), location.UnitCode(unit), "代码读回: %s", unit)
		assert.Equal(t, "名称"+string(unit), location.UnitName(unit), "名称读回: %s", unit)
	}

	// 各单元写入互不覆盖
	assert.Equal(t, "A", location.CountryCode)
	assert.Equal(t, "C", location.NewLaCode)
}

func TestLocationUnknownUnitIsEmpty(t *testing.T) {
	location := &Location{CountryCode: "E92000001"}

	unknown := meta.ObservationalUnit("galaxy")
	assert.Equal(t, "", location.UnitCode(unknown))
	assert.Equal(t, "", location.UnitName(unknown))

	// 未知单元写入直接丢弃
	location.SetUnit(unknown, "X", "银河")
	assert.Equal(t, "E92000001", location.CountryCode)
}

func TestLocationAbsentUnitsKeepSentinels(t *testing.T) {
	location := &Location{}
	location.SetUnit(meta.UnitCountry, "E92000001", "England")

	assert.Equal(t, "E92000001", location.UnitCode(meta.UnitCountry))
	assert.Equal(t, "England", location.UnitName(meta.UnitCountry))
	assert.Equal(t, "", location.UnitCode(meta.UnitRegion))
	assert.Equal(t, "", location.UnitName(meta.UnitRegion))
}
