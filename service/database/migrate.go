/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新导入流水线相关表结构
 * @architecture 数据访问层 - 迁移管理
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies statistics-import-service/service/models, gorm.io/gorm
 * @refs service/init.go
 */

package database

import (
	"log"

	"statistics-import-service/service/models"

	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	log.Println("开始数据库迁移...")

	// 导入与批次进度相关表
	err := db.AutoMigrate(
		&models.Subject{},
		&models.DataImport{},
		&models.BatchRecord{},
	)
	if err != nil {
		return err
	}

	// 参照实体相关表
	err = db.AutoMigrate(
		&models.Location{},
		&models.Filter{},
		&models.FilterGroup{},
		&models.FilterItem{},
		&models.IndicatorGroup{},
		&models.Indicator{},
	)
	if err != nil {
		return err
	}

	// 观测数据相关表
	err = db.AutoMigrate(
		&models.Observation{},
		&models.ObservationFilterItem{},
	)
	if err != nil {
		return err
	}

	log.Println("数据库迁移完成")
	return nil
}
