/*
 * @module service/importer/splitter_test
 * @description 数据文件切分器单元测试
 * @architecture 测试层 - 基于内存数据库和临时目录文件存储
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 构造数据文件 -> 切分 -> 批次文件内容与进度验证
 * @rules 覆盖向上取整批次数、单批次不落盘和断点续切
 * @dependencies testing, testify, statistics-import-service/testutil
 * @refs splitter.go
 */

package importer

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"statistics-import-service/service/distributed_lock"
	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"
	"statistics-import-service/testutil"

	"github.com/stretchr/testify/suite"
)

type SplitterTestSuite struct {
	suite.Suite
	tdb      *testutil.TestDB
	factory  *testutil.TestDataFactory
	store    *storage.FsStore
	splitter *Splitter
	status   *StatusService
	ctx      context.Context
}

func (suite *SplitterTestSuite) SetupTest() {
	suite.tdb = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.tdb.DB)

	store, err := storage.NewFsStore(suite.T().TempDir())
	suite.Require().NoError(err)
	suite.store = store

	executor := distributed_lock.NewLockExecutor(distributed_lock.NewMemoryLock())
	suite.status = NewStatusService(suite.tdb.DB, executor)
	suite.splitter = NewSplitter(suite.tdb.DB, store, suite.status)
	suite.ctx = context.Background()
}

func (suite *SplitterTestSuite) TearDownTest() {
	suite.tdb.Close()
}

// writeDataFile 生成带表头的数据文件并更新导入记录的总行数
func (suite *SplitterTestSuite) writeDataFile(imp *models.DataImport, totalRows int) {
	var b strings.Builder
	b.WriteString("time_period,time_identifier,geographic_level,country_code,country_name\n")
	for i := 1; i <= totalRows; i++ {
		fmt.Fprintf(&b, "201819,Academic Year,National,E92000001,England-%d\n", i)
	}
	testutil.WriteBlob(suite.store, imp.DataFilePath, b.String())

	imp.TotalRows = totalRows
	suite.Require().NoError(suite.tdb.DB.Model(imp).Update("total_rows", totalRows).Error)
}

// readLines 读取批次文件的行
func (suite *SplitterTestSuite) readLines(path string) []string {
	stream, err := suite.store.StreamRead(suite.ctx, path)
	suite.Require().NoError(err)
	defer stream.Close()
	content, err := io.ReadAll(stream)
	suite.Require().NoError(err)
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

func (suite *SplitterTestSuite) TestNumBatchesFor() {
	suite.Equal(1, NumBatchesFor(900, 1000))
	suite.Equal(1, NumBatchesFor(1000, 1000))
	suite.Equal(2, NumBatchesFor(1001, 1000))
	suite.Equal(3, NumBatchesFor(2500, 1000))
	suite.Equal(1, NumBatchesFor(2500, 0))
}

func (suite *SplitterTestSuite) TestSplitIntoBatches() {
	subject := suite.factory.CreateSubject()
	imp := suite.factory.CreateDataImport(subject.ID,
		testutil.WithImportStatus(meta.ImportStatusStage3, 0),
		testutil.WithRowsPerBatch(1000))
	suite.writeDataFile(imp, 2500)

	suite.Require().NoError(suite.splitter.Split(suite.ctx, imp))

	suite.Equal(3, imp.NumBatches)

	// 每个批次文件带表头，末批承接余数
	expectedRows := []int{1000, 1000, 500}
	for batchNo := 1; batchNo <= 3; batchNo++ {
		lines := suite.readLines(meta.BatchFileName(imp.DataFilePath, batchNo))
		suite.Equal("time_period,time_identifier,geographic_level,country_code,country_name", lines[0])
		suite.Len(lines, expectedRows[batchNo-1]+1, "批次 %d", batchNo)
	}

	updated, err := suite.status.GetImport(suite.ctx, imp.ID)
	suite.Require().NoError(err)
	suite.Equal(3, updated.NumBatches)
	suite.Equal(meta.ImportStatusStage3, updated.ImportStatus())
	suite.Equal(100, updated.StagePercentageComplete)
}

func (suite *SplitterTestSuite) TestSingleBatchSkipsSplitting() {
	subject := suite.factory.CreateSubject()
	imp := suite.factory.CreateDataImport(subject.ID,
		testutil.WithImportStatus(meta.ImportStatusStage3, 0),
		testutil.WithRowsPerBatch(1000))
	suite.writeDataFile(imp, 900)

	suite.Require().NoError(suite.splitter.Split(suite.ctx, imp))

	suite.Equal(1, imp.NumBatches)
	exists, err := suite.store.Exists(suite.ctx, meta.BatchFileName(imp.DataFilePath, 1))
	suite.Require().NoError(err)
	suite.False(exists, "单批次不应落盘批次文件")

	updated, err := suite.status.GetImport(suite.ctx, imp.ID)
	suite.Require().NoError(err)
	suite.Equal(100, updated.StagePercentageComplete)
}

func (suite *SplitterTestSuite) TestSplitResumesAfterCrash() {
	subject := suite.factory.CreateSubject()
	imp := suite.factory.CreateDataImport(subject.ID,
		testutil.WithImportStatus(meta.ImportStatusStage3, 0),
		testutil.WithRowsPerBatch(10))
	suite.writeDataFile(imp, 25)

	// 模拟崩溃前已写出的首批文件
	sentinel := "time_period,time_identifier,geographic_level,country_code,country_name\nsentinel\n"
	testutil.WriteBlob(suite.store, meta.BatchFileName(imp.DataFilePath, 1), sentinel)

	suite.Require().NoError(suite.splitter.Split(suite.ctx, imp))

	// 已存在的批次文件不被覆盖，后续批次正常写出
	lines := suite.readLines(meta.BatchFileName(imp.DataFilePath, 1))
	suite.Equal([]string{"time_period,time_identifier,geographic_level,country_code,country_name", "sentinel"}, lines)

	lines = suite.readLines(meta.BatchFileName(imp.DataFilePath, 2))
	suite.Len(lines, 11)
	suite.Contains(lines[1], "England-11")

	lines = suite.readLines(meta.BatchFileName(imp.DataFilePath, 3))
	suite.Len(lines, 6)
	suite.Contains(lines[1], "England-21")
}

func (suite *SplitterTestSuite) TestSplitExitsWhenAborting() {
	subject := suite.factory.CreateSubject()
	imp := suite.factory.CreateDataImport(subject.ID,
		testutil.WithImportStatus(meta.ImportStatusAborting, 0),
		testutil.WithRowsPerBatch(10))
	suite.writeDataFile(imp, 25)

	suite.Require().NoError(suite.splitter.Split(suite.ctx, imp))

	exists, err := suite.store.Exists(suite.ctx, meta.BatchFileName(imp.DataFilePath, 1))
	suite.Require().NoError(err)
	suite.False(exists, "中止中的导入不应写出批次文件")
}

func TestSplitter(t *testing.T) {
	suite.Run(t, new(SplitterTestSuite))
}
