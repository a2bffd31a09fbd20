/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, time
 * @refs service/models
 */

package testutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"statistics-import-service/service/meta"
	"statistics-import-service/service/models"
	"statistics-import-service/service/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// 自动迁移所有模型
	err = db.AutoMigrate(
		&models.Subject{},
		&models.DataImport{},
		&models.BatchRecord{},
		&models.Location{},
		&models.Filter{},
		&models.FilterGroup{},
		&models.FilterItem{},
		&models.IndicatorGroup{},
		&models.Indicator{},
		&models.Observation{},
		&models.ObservationFilterItem{},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	// 清空所有表的数据
	tables := []string{
		"observation_filter_items",
		"observations",
		"filter_items",
		"filter_groups",
		"filters",
		"indicators",
		"indicator_groups",
		"locations",
		"batch_records",
		"data_imports",
		"subjects",
	}

	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// SubjectOption 主体选项函数类型
type SubjectOption func(*models.Subject)

// CreateSubject 创建测试主体
func (f *TestDataFactory) CreateSubject(opts ...SubjectOption) *models.Subject {
	subject := &models.Subject{
		ReleaseID: generateID("rel"),
		Name:      "测试主体_" + generateSuffix(),
	}

	// 应用选项
	for _, opt := range opts {
		opt(subject)
	}

	err := f.DB.Create(subject).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test subject: %v", err))
	}

	return subject
}

// DataImportOption 导入记录选项函数类型
type DataImportOption func(*models.DataImport)

// WithImportStatus 指定导入状态
func WithImportStatus(status meta.ImportStatus, percent int) DataImportOption {
	return func(imp *models.DataImport) {
		imp.Status = string(status)
		imp.StagePercentageComplete = percent
	}
}

// WithRowsPerBatch 指定批次行数
func WithRowsPerBatch(rows int) DataImportOption {
	return func(imp *models.DataImport) {
		imp.RowsPerBatch = rows
	}
}

// CreateDataImport 创建测试导入记录
func (f *TestDataFactory) CreateDataImport(subjectID string, opts ...DataImportOption) *models.DataImport {
	suffix := generateSuffix()
	dataImport := &models.DataImport{
		SubjectID:    subjectID,
		DataFilePath: "imports/data_" + suffix + ".csv",
		MetaFilePath: "imports/data_" + suffix + ".meta.csv",
		DataFileName: "data_" + suffix,
		RowsPerBatch: 1000,
		Status:       string(meta.ImportStatusQueued),
	}

	// 应用选项
	for _, opt := range opts {
		opt(dataImport)
	}

	err := f.DB.Create(dataImport).Error
	if err != nil {
		panic(fmt.Sprintf("failed to create test data import: %v", err))
	}

	return dataImport
}

// CreateFilter 创建测试过滤器及其默认分组
func (f *TestDataFactory) CreateFilter(subjectID, label, name string) *models.Filter {
	filter := &models.Filter{
		SubjectID: subjectID,
		Label:     label,
		Name:      name,
	}
	if err := f.DB.Create(filter).Error; err != nil {
		panic(fmt.Sprintf("failed to create test filter: %v", err))
	}
	return filter
}

// WriteBlob 向存储写入一个文本文件
func WriteBlob(store storage.BlobStore, path, content string) {
	err := store.Write(context.Background(), path, strings.NewReader(content), "text/csv")
	if err != nil {
		panic(fmt.Sprintf("failed to write test blob %s: %v", path, err))
	}
}

// CsvContent 把行拼成CSV文本
func CsvContent(rows ...string) string {
	return strings.Join(rows, "\n") + "\n"
}

// 辅助函数
func generateID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), generateSuffix())
}

var suffixCounter int64

func generateSuffix() string {
	suffixCounter++
	return fmt.Sprintf("%d_%d", time.Now().UnixNano()%100000, suffixCounter)
}
