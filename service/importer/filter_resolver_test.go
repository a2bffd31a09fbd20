/*
 * @module service/importer/filter_resolver_test
 * @description 筛选解析器单元测试
 * @architecture 测试层 - 基于内存数据库
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 解析筛选项 -> 分组与筛选项去重验证 -> 缺省标签验证
 * @rules 覆盖缺省标签收敛和两级查找创建
 * @dependencies testing, testify, statistics-import-service/testutil
 * @refs filter_resolver.go
 */

package importer

import (
	"context"
	"testing"

	"statistics-import-service/service/models"
	"statistics-import-service/testutil"

	"github.com/stretchr/testify/suite"
)

type FilterResolverTestSuite struct {
	suite.Suite
	tdb      *testutil.TestDB
	factory  *testutil.TestDataFactory
	cache    *ImporterCache
	resolver *FilterResolver
	filter   *models.Filter
	ctx      context.Context
}

func (suite *FilterResolverTestSuite) SetupSuite() {
	suite.tdb = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.tdb.DB)
	suite.ctx = context.Background()
}

// SetupTest 全套用例共享一个内存库，每个用例前清空数据并重建解析器
func (suite *FilterResolverTestSuite) SetupTest() {
	suite.tdb.CleanDB()
	suite.cache = NewImporterCache()
	suite.resolver = NewFilterResolver(suite.tdb.DB, suite.cache)

	subject := suite.factory.CreateSubject()
	suite.filter = suite.factory.CreateFilter(subject.ID, "Characteristic", "characteristic")
}

func (suite *FilterResolverTestSuite) TearDownSuite() {
	suite.tdb.Close()
}

func (suite *FilterResolverTestSuite) TestCreatesGroupAndItem() {
	item, err := suite.resolver.FindFilterItem(suite.ctx, "Ethnicity Major Asian Total", "Ethnic group major", suite.filter)
	suite.Require().NoError(err)
	suite.Equal("Ethnicity Major Asian Total", item.Label)

	var group models.FilterGroup
	suite.Require().NoError(suite.tdb.DB.First(&group, "id = ?", item.FilterGroupID).Error)
	suite.Equal("Ethnic group major", group.Label)
	suite.Equal(suite.filter.ID, group.FilterID)
}

func (suite *FilterResolverTestSuite) TestSameLabelsResolveToSameItem() {
	first, err := suite.resolver.FindFilterItem(suite.ctx, "Total", "Gender", suite.filter)
	suite.Require().NoError(err)
	second, err := suite.resolver.FindFilterItem(suite.ctx, "Total", "Gender", suite.filter)
	suite.Require().NoError(err)

	suite.Equal(first.ID, second.ID)

	var itemCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.FilterItem{}).Count(&itemCount).Error)
	suite.Equal(int64(1), itemCount)
}

func (suite *FilterResolverTestSuite) TestSameItemLabelInDifferentGroups() {
	boys, err := suite.resolver.FindFilterItem(suite.ctx, "Total", "Gender", suite.filter)
	suite.Require().NoError(err)
	ethnicity, err := suite.resolver.FindFilterItem(suite.ctx, "Total", "Ethnic group major", suite.filter)
	suite.Require().NoError(err)

	suite.NotEqual(boys.ID, ethnicity.ID)
}

func (suite *FilterResolverTestSuite) TestBlankLabelsFallBackToDefaults() {
	item, err := suite.resolver.FindFilterItem(suite.ctx, "", "", suite.filter)
	suite.Require().NoError(err)
	suite.Equal("Not specified", item.Label)

	var group models.FilterGroup
	suite.Require().NoError(suite.tdb.DB.First(&group, "id = ?", item.FilterGroupID).Error)
	suite.Equal("Default", group.Label)

	// 重复的空白标签收敛到同一实体
	again, err := suite.resolver.FindFilterItem(suite.ctx, "", "", suite.filter)
	suite.Require().NoError(err)
	suite.Equal(item.ID, again.ID)
}

func (suite *FilterResolverTestSuite) TestResolveSurvivesCacheClear() {
	first, err := suite.resolver.FindFilterItem(suite.ctx, "Total", "Gender", suite.filter)
	suite.Require().NoError(err)

	suite.cache.Clear()
	second, err := suite.resolver.FindFilterItem(suite.ctx, "Total", "Gender", suite.filter)
	suite.Require().NoError(err)
	suite.Equal(first.ID, second.ID)
}

func TestFilterResolver(t *testing.T) {
	suite.Run(t, new(FilterResolverTestSuite))
}
