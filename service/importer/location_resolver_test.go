/*
 * @module service/importer/location_resolver_test
 * @description 位置解析器单元测试
 * @architecture 测试层 - 基于内存数据库
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 解析位置 -> 身份去重验证 -> 缓存与库路径验证
 * @rules 覆盖在场子属性身份、缺席子属性不约束和旧代码参与身份
 * @dependencies testing, testify, statistics-import-service/testutil
 * @refs location_resolver.go
 */

package importer

import (
	"context"
	"testing"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/testutil"

	"github.com/stretchr/testify/suite"
)

type LocationResolverTestSuite struct {
	suite.Suite
	tdb      *testutil.TestDB
	cache    *ImporterCache
	resolver *LocationResolver
	ctx      context.Context
}

func (suite *LocationResolverTestSuite) SetupTest() {
	suite.tdb = testutil.NewTestDB()
	suite.cache = NewImporterCache()
	suite.resolver = NewLocationResolver(suite.tdb.DB, suite.cache)
	suite.ctx = context.Background()
}

func (suite *LocationResolverTestSuite) TearDownTest() {
	suite.tdb.Close()
}

func laAttrs(laCode, oldCode, laName string) []LocationAttribute {
	return []LocationAttribute{
		{Unit: meta.UnitCountry, Code: "E92000001", Name: "England"},
		{Unit: meta.UnitRegion, Code: "E12000001", Name: "North East"},
		{Unit: meta.UnitLocalAuthority, Code: laCode, OldCode: oldCode, Name: laName},
	}
}

func (suite *LocationResolverTestSuite) TestSameAttributesResolveToSameLocation() {
	first, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority,
		laAttrs("E09000003", "302", "Barnet"))
	suite.Require().NoError(err)

	second, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority,
		laAttrs("E09000003", "302", "Barnet"))
	suite.Require().NoError(err)

	suite.Equal(first.ID, second.ID)

	var count int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Location{}).Count(&count).Error)
	suite.Equal(int64(1), count)
}

func (suite *LocationResolverTestSuite) TestDifferentAttributesCreateNewLocation() {
	first, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority,
		laAttrs("E09000003", "302", "Barnet"))
	suite.Require().NoError(err)

	// 名称不同即不同身份
	second, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority,
		laAttrs("E09000003", "302", "Barnet (pre-2019)"))
	suite.Require().NoError(err)
	suite.NotEqual(first.ID, second.ID)

	// 相同子属性在不同地理层级下也是不同身份
	third, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelRegional,
		laAttrs("E09000003", "302", "Barnet"))
	suite.Require().NoError(err)
	suite.NotEqual(first.ID, third.ID)
}

func (suite *LocationResolverTestSuite) TestAbsentAttributesDoNotConstrain() {
	// 国家层行只携带国家子属性
	national := []LocationAttribute{
		{Unit: meta.UnitCountry, Code: "E92000001", Name: "England"},
		{Unit: meta.UnitRegion},
		{Unit: meta.UnitLocalAuthority},
	}
	location, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelNational, national)
	suite.Require().NoError(err)

	// 缺席子属性落库为空串哨兵
	suite.Equal("E92000001", location.UnitCode(meta.UnitCountry))
	suite.Equal("England", location.UnitName(meta.UnitCountry))
	suite.Equal("", location.UnitCode(meta.UnitRegion))
	suite.Equal("", location.UnitCode(meta.UnitLocalAuthority))

	again, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelNational, national)
	suite.Require().NoError(err)
	suite.Equal(location.ID, again.ID)
}

func (suite *LocationResolverTestSuite) TestOldCodeAlonePresentAndDistinct() {
	withNewCode, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority,
		laAttrs("E09000003", "", "Barnet"))
	suite.Require().NoError(err)

	onlyOldCode, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority,
		laAttrs("", "302", "Barnet"))
	suite.Require().NoError(err)

	suite.NotEqual(withNewCode.ID, onlyOldCode.ID)
	suite.Equal("302", onlyOldCode.OldLaCode)
}

func (suite *LocationResolverTestSuite) TestResolveSurvivesCacheClear() {
	attrs := laAttrs("E09000003", "302", "Barnet")
	first, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority, attrs)
	suite.Require().NoError(err)

	// 清空缓存后走库路径仍收敛到同一实体
	suite.cache.Clear()
	second, err := suite.resolver.Find(suite.ctx, meta.GeographicLevelLocalAuthority, attrs)
	suite.Require().NoError(err)
	suite.Equal(first.ID, second.ID)
}

func TestLocationResolver(t *testing.T) {
	suite.Run(t, new(LocationResolverTestSuite))
}
