/*
 * @module service/importer/metadata_importer_test
 * @description 元数据导入器单元测试
 * @architecture 测试层 - 基于内存数据库和临时目录文件存储
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 构造元数据文件 -> 导入 -> 实体与映射验证 -> 重复导入幂等验证
 * @rules 覆盖筛选列/指标创建、缺省指标分组和重复执行取回
 * @dependencies testing, testify, statistics-import-service/testutil
 * @refs metadata_importer.go
 */

package importer

import (
	"context"
	"testing"

	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"
	"statistics-import-service/testutil"

	"github.com/stretchr/testify/suite"
)

type MetadataImporterTestSuite struct {
	suite.Suite
	tdb      *testutil.TestDB
	factory  *testutil.TestDataFactory
	store    *storage.FsStore
	importer *MetadataImporter
	ctx      context.Context
}

func (suite *MetadataImporterTestSuite) SetupTest() {
	suite.tdb = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.tdb.DB)

	store, err := storage.NewFsStore(suite.T().TempDir())
	suite.Require().NoError(err)
	suite.store = store
	suite.importer = NewMetadataImporter(suite.tdb.DB, store)
	suite.ctx = context.Background()
}

func (suite *MetadataImporterTestSuite) TearDownTest() {
	suite.tdb.Close()
}

func (suite *MetadataImporterTestSuite) writeMetaFile() {
	testutil.WriteBlob(suite.store, "data.meta.csv", testutil.CsvContent(
		"col_name,col_type,label,filter_grouping_column,filter_hint,indicator_grouping,indicator_unit,indicator_dp",
		"characteristic,Filter,Characteristic,characteristic_group,Filter by pupil characteristic,,,",
		"school_type,Filter,School type,,,,,",
		"sess_overall,Indicator,Number of overall absence sessions,,,Absence fields,,0",
		"sess_overall_percent,Indicator,Overall absence rate,,,Absence fields,%,2",
		"headcount,Indicator,Headcount,,,,,",
	))
}

func (suite *MetadataImporterTestSuite) TestImportCreatesEntities() {
	suite.writeMetaFile()
	subject := suite.factory.CreateSubject()

	subjectMeta, err := suite.importer.Import(suite.ctx, subject, "data.meta.csv")
	suite.Require().NoError(err)

	suite.Len(subjectMeta.FiltersByColumn, 2)
	suite.Len(subjectMeta.IndicatorsByColumn, 3)
	suite.Equal(map[string]string{"characteristic": "characteristic_group"}, subjectMeta.FilterGroupingColumns)

	characteristic := subjectMeta.FiltersByColumn["characteristic"]
	suite.Require().NotNil(characteristic)
	suite.Equal("Characteristic", characteristic.Label)
	suite.Equal("Filter by pupil characteristic", characteristic.Hint)

	rate := subjectMeta.IndicatorsByColumn["sess_overall_percent"]
	suite.Require().NotNil(rate)
	suite.Equal("%", rate.Unit)
	suite.Require().NotNil(rate.DecimalPlaces)
	suite.Equal(2, *rate.DecimalPlaces)

	// 相同分组标签收敛到同一个指标分组，缺失标签落为 Default
	var groups []models.IndicatorGroup
	suite.Require().NoError(suite.tdb.DB.Where("subject_id = ?", subject.ID).Order("label").Find(&groups).Error)
	suite.Require().Len(groups, 2)
	suite.Equal("Absence fields", groups[0].Label)
	suite.Equal("Default", groups[1].Label)

	var absenceIndicators int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Indicator{}).
		Where("indicator_group_id = ?", groups[0].ID).Count(&absenceIndicators).Error)
	suite.Equal(int64(2), absenceIndicators)
}

func (suite *MetadataImporterTestSuite) TestImportIsIdempotent() {
	suite.writeMetaFile()
	subject := suite.factory.CreateSubject()

	first, err := suite.importer.Import(suite.ctx, subject, "data.meta.csv")
	suite.Require().NoError(err)
	second, err := suite.importer.Import(suite.ctx, subject, "data.meta.csv")
	suite.Require().NoError(err)

	// 重复执行不创建新实体，取回同一批定义
	suite.Equal(first.FiltersByColumn["characteristic"].ID, second.FiltersByColumn["characteristic"].ID)
	suite.Equal(first.IndicatorsByColumn["sess_overall"].ID, second.IndicatorsByColumn["sess_overall"].ID)
	suite.Equal(first.FilterGroupingColumns, second.FilterGroupingColumns)

	var filterCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Filter{}).
		Where("subject_id = ?", subject.ID).Count(&filterCount).Error)
	suite.Equal(int64(2), filterCount)
}

func (suite *MetadataImporterTestSuite) TestImportRejectsInvalidColumnType() {
	testutil.WriteBlob(suite.store, "bad.meta.csv", testutil.CsvContent(
		"col_name,col_type,label,filter_grouping_column,filter_hint,indicator_grouping,indicator_unit,indicator_dp",
		"characteristic,Dimension,Characteristic,,,,,",
	))
	subject := suite.factory.CreateSubject()

	_, err := suite.importer.Import(suite.ctx, subject, "bad.meta.csv")
	suite.Error(err)
}

func TestMetadataImporter(t *testing.T) {
	suite.Run(t, new(MetadataImporterTestSuite))
}
