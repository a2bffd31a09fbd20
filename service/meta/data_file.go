/*
 * @module service/meta/data_file
 * @description 数据文件元数据定义，包括文件种类变体、观测单元列绑定和批次文件命名
 * @architecture 元数据层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 静态元数据定义
 * @rules 文件种类由表头列推断，每个种类绑定其可读取的观测单元列集合
 * @dependencies 无
 * @refs service/importer/orchestrator.go, service/importer/location_resolver.go
 */

package meta

import "fmt"

// DataFileKind 数据文件种类
// 取代按列名反射选择导入器的做法，每个种类显式绑定观测单元列集合
type DataFileKind string

const (
	DataFileKindGeographic             DataFileKind = "Geographic"
	DataFileKindLaCharacteristic       DataFileKind = "LaCharacteristic"
	DataFileKindNationalCharacteristic DataFileKind = "NationalCharacteristic"
)

// ObservationalUnit 观测单元类型，对应位置实体的一组子属性列
type ObservationalUnit string

const (
	UnitCountry                   ObservationalUnit = "country"
	UnitRegion                    ObservationalUnit = "region"
	UnitLocalAuthority            ObservationalUnit = "local_authority"
	UnitLocalAuthorityDistrict    ObservationalUnit = "local_authority_district"
	UnitRscRegion                 ObservationalUnit = "rsc_region"
	UnitParliamentaryConstituency ObservationalUnit = "parliamentary_constituency"
	UnitWard                      ObservationalUnit = "ward"
	UnitOpportunityArea           ObservationalUnit = "opportunity_area"
	UnitSponsor                   ObservationalUnit = "sponsor"
	UnitInstitution               ObservationalUnit = "institution"
	UnitProvider                  ObservationalUnit = "provider"
	UnitSchool                    ObservationalUnit = "school"
	UnitPlanningArea              ObservationalUnit = "planning_area"
)

// ObservationalUnitColumns 观测单元对应的 CSV 列名 (代码列, 名称列)
// 本地当局额外携带旧代码列，单独处理
var ObservationalUnitColumns = map[ObservationalUnit][2]string{
	UnitCountry:                   {"country_code", "country_name"},
	UnitRegion:                    {"region_code", "region_name"},
	UnitLocalAuthority:            {"new_la_code", "la_name"},
	UnitLocalAuthorityDistrict:    {"lad_code", "lad_name"},
	UnitRscRegion:                 {"rsc_region_lead_code", "rsc_region_lead_name"},
	UnitParliamentaryConstituency: {"pcon_code", "pcon_name"},
	UnitWard:                      {"ward_code", "ward_name"},
	UnitOpportunityArea:           {"opportunity_area_code", "opportunity_area_name"},
	UnitSponsor:                   {"sponsor_id", "sponsor_name"},
	UnitInstitution:               {"institution_id", "institution_name"},
	UnitProvider:                  {"provider_urn", "provider_name"},
	UnitSchool:                    {"school_urn", "school_name"},
	UnitPlanningArea:              {"planning_area_code", "planning_area_name"},
}

// LocalAuthorityOldCodeColumn 本地当局旧代码列
const LocalAuthorityOldCodeColumn = "old_la_code"

// unitsByLevel 每个地理层级读取的观测单元链，从国家层层层细化
var unitsByLevel = map[GeographicLevel][]ObservationalUnit{
	GeographicLevelNational:                  {UnitCountry},
	GeographicLevelRegional:                  {UnitCountry, UnitRegion},
	GeographicLevelLocalAuthority:            {UnitCountry, UnitRegion, UnitLocalAuthority},
	GeographicLevelLocalAuthorityDistrict:    {UnitCountry, UnitRegion, UnitLocalAuthorityDistrict},
	GeographicLevelRscRegion:                 {UnitCountry, UnitRscRegion},
	GeographicLevelParliamentaryConstituency: {UnitCountry, UnitParliamentaryConstituency},
	GeographicLevelWard:                      {UnitCountry, UnitRegion, UnitWard},
	GeographicLevelOpportunityArea:           {UnitCountry, UnitRegion, UnitOpportunityArea},
	GeographicLevelSponsor:                   {UnitCountry, UnitSponsor},
	GeographicLevelInstitution:               {UnitCountry, UnitRegion, UnitLocalAuthority, UnitInstitution},
	GeographicLevelProvider:                  {UnitCountry, UnitProvider},
	GeographicLevelSchool:                    {UnitCountry, UnitRegion, UnitLocalAuthority, UnitSchool},
	GeographicLevelPlanningArea:              {UnitCountry, UnitRegion, UnitLocalAuthority, UnitPlanningArea},
}

// kindUnits 每个文件种类允许读取的观测单元集合
var kindUnits = map[DataFileKind]map[ObservationalUnit]bool{
	DataFileKindGeographic: func() map[ObservationalUnit]bool {
		all := make(map[ObservationalUnit]bool, len(ObservationalUnitColumns))
		for unit := range ObservationalUnitColumns {
			all[unit] = true
		}
		return all
	}(),
	DataFileKindLaCharacteristic: {
		UnitCountry:        true,
		UnitRegion:         true,
		UnitLocalAuthority: true,
	},
	DataFileKindNationalCharacteristic: {
		UnitCountry: true,
	},
}

// UnitsFor 返回指定文件种类在指定地理层级下应读取的观测单元链
func (k DataFileKind) UnitsFor(level GeographicLevel) []ObservationalUnit {
	allowed := kindUnits[k]
	var units []ObservationalUnit
	for _, unit := range unitsByLevel[level] {
		if allowed[unit] {
			units = append(units, unit)
		}
	}
	return units
}

// DetectDataFileKind 根据表头列推断文件种类
// 含本地当局列且含 characteristic 筛选列的为 LA 特征文件，
// 仅含国家列且含 characteristic 的为国家特征文件，其余为地理文件
func DetectDataFileKind(headers []string) DataFileKind {
	has := make(map[string]bool, len(headers))
	for _, h := range headers {
		has[h] = true
	}

	hasCharacteristic := has["characteristic"]
	hasLa := has[ObservationalUnitColumns[UnitLocalAuthority][0]] || has[LocalAuthorityOldCodeColumn]

	if hasCharacteristic && hasLa {
		return DataFileKindLaCharacteristic
	}
	if hasCharacteristic {
		return DataFileKindNationalCharacteristic
	}
	return DataFileKindGeographic
}

// BatchFileName 批次文件命名约定，批次号固定补零到 6 位
func BatchFileName(originalName string, batchNo int) string {
	return fmt.Sprintf("%s_%06d", originalName, batchNo)
}
