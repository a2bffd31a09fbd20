/*
 * @module service/importer/orchestrator_test
 * @description 导入编排器端到端测试，批次在本进程内顺序执行
 * @architecture 测试层 - 基于内存数据库和临时目录文件存储
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 创建导入 -> 走完全部阶段 -> 观测数据与收尾状态验证
 * @rules 覆盖完整流水线、忽略层级剔除、行级错误收尾、并发创建拒绝、重新导入替换和取消
 * @dependencies testing, testify, statistics-import-service/testutil
 * @refs orchestrator.go, observation_importer.go
 */

package importer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"statistics-import-service/service/distributed_lock"
	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"
	"statistics-import-service/testutil"

	"github.com/stretchr/testify/suite"
)

const e2eDataHeader = "time_period,time_identifier,geographic_level,country_code,country_name," +
	"region_code,region_name,new_la_code,old_la_code,la_name,school_urn,school_name," +
	"school_type,sess_overall,sess_overall_percent"

const e2eMetaContent = "col_name,col_type,label,filter_grouping_column,filter_hint,indicator_grouping,indicator_unit,indicator_dp\n" +
	"school_type,Filter,School type,,,,,\n" +
	"sess_overall,Indicator,Number of overall absence sessions,,,Absence fields,,0\n" +
	"sess_overall_percent,Indicator,Overall absence rate,,,Absence fields,%,2\n"

type OrchestratorTestSuite struct {
	suite.Suite
	tdb          *testutil.TestDB
	store        *storage.FsStore
	orchestrator *Orchestrator
	status       *StatusService
	ctx          context.Context
}

func (suite *OrchestratorTestSuite) SetupTest() {
	suite.tdb = testutil.NewTestDB()

	store, err := storage.NewFsStore(suite.T().TempDir())
	suite.Require().NoError(err)
	suite.store = store

	executor := distributed_lock.NewLockExecutor(distributed_lock.NewMemoryLock())
	cache := NewImporterCache()
	suite.status = NewStatusService(suite.tdb.DB, executor)
	batchService := NewBatchService(suite.tdb.DB, executor, suite.status)
	suite.orchestrator = NewOrchestrator(suite.tdb.DB, store, cache, suite.status, batchService, nil)
	suite.ctx = context.Background()
}

func (suite *OrchestratorTestSuite) TearDownTest() {
	suite.tdb.Close()
}

// e2eDataRow 生成一行数据：行号被5整除的为学校层（默认忽略），其余交替为国家层和LA层
func e2eDataRow(i int, timePeriod string) string {
	if i%5 == 0 {
		return fmt.Sprintf("%s,Academic Year,School,E92000001,England,E12000001,North East,"+
			"E09000003,302,Barnet,100150,Example School,State-funded primary,%d,1.5", timePeriod, i)
	}
	if i%2 == 0 {
		return fmt.Sprintf("%s,Academic Year,Local Authority,E92000001,England,E12000001,North East,"+
			"E09000003,302,Barnet,,,State-funded primary,%d,1.5", timePeriod, i)
	}
	return fmt.Sprintf("%s,Academic Year,National,E92000001,England,,,,,,,,Total,%d,2.5", timePeriod, i)
}

func (suite *OrchestratorTestSuite) writeDataFiles(name string, rows []string) (string, string) {
	dataPath := name + ".csv"
	metaPath := name + ".meta.csv"
	testutil.WriteBlob(suite.store, dataPath, e2eDataHeader+"\n"+strings.Join(rows, "\n")+"\n")
	testutil.WriteBlob(suite.store, metaPath, e2eMetaContent)
	return dataPath, metaPath
}

func (suite *OrchestratorTestSuite) TestFullPipeline() {
	rows := make([]string, 0, 25)
	for i := 1; i <= 25; i++ {
		rows = append(rows, e2eDataRow(i, "201819"))
	}
	dataPath, metaPath := suite.writeDataFiles("absence", rows)

	imp, err := suite.orchestrator.CreateImport(suite.ctx, &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_by_geography",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
		RowsPerBatch: 10,
	})
	suite.Require().NoError(err)
	suite.Equal(meta.ImportStatusQueued, imp.ImportStatus())

	suite.Require().NoError(suite.orchestrator.ProcessImport(suite.ctx, imp.ID))

	final, err := suite.status.GetImport(suite.ctx, imp.ID)
	suite.Require().NoError(err)
	suite.Equal(meta.ImportStatusComplete, final.ImportStatus())
	suite.Equal(100, final.StagePercentageComplete)
	suite.Equal(25, final.TotalRows)
	suite.Equal(3, final.NumBatches)
	suite.ElementsMatch(models.JSONBStringArray{"National", "Local Authority", "School"},
		final.GeographicLevels)

	// 学校层的5行被忽略，剩余20行成为观测数据
	var observations []models.Observation
	suite.Require().NoError(suite.tdb.DB.Where("subject_id = ?", imp.SubjectID).
		Order("csv_row").Find(&observations).Error)
	suite.Require().Len(observations, 20)

	// 每条观测携带两个指标的原始字符串值，行号指向源文件
	first := observations[0]
	suite.Equal(int64(2), first.CsvRow)
	suite.Equal("National", first.GeographicLevel)
	suite.Equal(2018, first.Year)
	suite.Equal("AY", first.TimeIdentifier)
	suite.Len(first.Measures, 2)
	values := make([]string, 0, len(first.Measures))
	for _, v := range first.Measures {
		values = append(values, v)
	}
	suite.ElementsMatch([]string{"1", "2.5"}, values)

	// 位置按在场子属性去重：国家层1个 + LA层1个
	var locationCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Location{}).Count(&locationCount).Error)
	suite.Equal(int64(2), locationCount)

	// 单筛选列：每条观测一条筛选项关联
	var joinCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.ObservationFilterItem{}).Count(&joinCount).Error)
	suite.Equal(int64(20), joinCount)

	// 批次文件齐全
	for batchNo := 1; batchNo <= 3; batchNo++ {
		exists, err := suite.store.Exists(suite.ctx, meta.BatchFileName(dataPath, batchNo))
		suite.Require().NoError(err)
		suite.True(exists, "批次 %d", batchNo)
	}
}

func (suite *OrchestratorTestSuite) TestRowErrorFailsImportWithSourceRow() {
	rows := make([]string, 0, 25)
	for i := 1; i <= 25; i++ {
		timePeriod := "201819"
		if i == 22 {
			timePeriod = "ABC" // 预扫描不检查时间区间，留给批次阶段暴露
		}
		rows = append(rows, e2eDataRow(i, timePeriod))
	}
	dataPath, metaPath := suite.writeDataFiles("absence_bad_period", rows)

	imp, err := suite.orchestrator.CreateImport(suite.ctx, &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_bad_period",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
		RowsPerBatch: 10,
	})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.orchestrator.ProcessImport(suite.ctx, imp.ID))

	final, err := suite.status.GetImport(suite.ctx, imp.ID)
	suite.Require().NoError(err)
	suite.Equal(meta.ImportStatusFailed, final.ImportStatus())

	// 第22个数据行位于第3批，错误行号折算回源文件
	suite.Contains(final.Errors, `第 23 行: 无法解析的时间区间: "ABC"`)
}

func (suite *OrchestratorTestSuite) TestInvalidLevelFailsAtPrepass() {
	rows := []string{
		e2eDataRow(1, "201819"),
		strings.Replace(e2eDataRow(3, "201819"), "National", "Galaxy", 1),
	}
	dataPath, metaPath := suite.writeDataFiles("absence_bad_level", rows)

	imp, err := suite.orchestrator.CreateImport(suite.ctx, &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_bad_level",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
		RowsPerBatch: 10,
	})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.orchestrator.ProcessImport(suite.ctx, imp.ID))

	final, err := suite.status.GetImport(suite.ctx, imp.ID)
	suite.Require().NoError(err)
	suite.Equal(meta.ImportStatusFailed, final.ImportStatus())
	suite.Contains(final.Errors, `第 3 行: 无法识别的地理层级: "Galaxy"`)
}

func (suite *OrchestratorTestSuite) TestRejectsConcurrentImportForSameFile() {
	dataPath, metaPath := suite.writeDataFiles("absence_dup", []string{e2eDataRow(1, "201819")})

	_, err := suite.orchestrator.CreateImport(suite.ctx, &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_dup",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
	})
	suite.Require().NoError(err)

	_, err = suite.orchestrator.CreateImport(suite.ctx, &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_dup",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
	})
	suite.ErrorIs(err, ErrImportInProgress)
}

func (suite *OrchestratorTestSuite) TestReimportReplacesSubject() {
	rows := []string{e2eDataRow(1, "201819"), e2eDataRow(2, "201819")}
	dataPath, metaPath := suite.writeDataFiles("absence_replace", rows)

	request := &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_replace",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
		RowsPerBatch: 10,
	}
	first, err := suite.orchestrator.CreateImport(suite.ctx, request)
	suite.Require().NoError(err)
	suite.Require().NoError(suite.orchestrator.ProcessImport(suite.ctx, first.ID))

	second, err := suite.orchestrator.CreateImport(suite.ctx, request)
	suite.Require().NoError(err)
	suite.NotEqual(first.SubjectID, second.SubjectID)
	suite.Require().NoError(suite.orchestrator.ProcessImport(suite.ctx, second.ID))

	// 旧主体及其观测被整体替换，导入记录保留作审计
	var subjectCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Subject{}).
		Where("name = ?", "absence_replace").Count(&subjectCount).Error)
	suite.Equal(int64(1), subjectCount)

	var orphaned int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Observation{}).
		Where("subject_id = ?", first.SubjectID).Count(&orphaned).Error)
	suite.Equal(int64(0), orphaned)

	var importCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.DataImport{}).Count(&importCount).Error)
	suite.Equal(int64(2), importCount)
}

func (suite *OrchestratorTestSuite) TestAbortedImportFinalizesAsCancelled() {
	dataPath, metaPath := suite.writeDataFiles("absence_cancel", []string{e2eDataRow(1, "201819")})

	imp, err := suite.orchestrator.CreateImport(suite.ctx, &CreateImportRequest{
		ReleaseID:    "rel-2018",
		SubjectName:  "absence_cancel",
		DataFilePath: dataPath,
		MetaFilePath: metaPath,
	})
	suite.Require().NoError(err)
	suite.Require().NoError(suite.status.CancelImport(suite.ctx, imp.ID))

	suite.Require().NoError(suite.orchestrator.ProcessImport(suite.ctx, imp.ID))

	final, err := suite.status.GetImport(suite.ctx, imp.ID)
	suite.Require().NoError(err)
	suite.Equal(meta.ImportStatusCancelled, final.ImportStatus())

	var observationCount int64
	suite.Require().NoError(suite.tdb.DB.Model(&models.Observation{}).Count(&observationCount).Error)
	suite.Equal(int64(0), observationCount)
}

func TestOrchestrator(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
