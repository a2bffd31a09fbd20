/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、分布式锁、存储和导入流水线各服务的初始化
 * @architecture 分层架构 - 服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 应用启动时执行初始化流程
 * @rules 确保所有依赖服务正常启动后才提供API服务
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs service/importer, api/routes.go
 */

package service

import (
	"context"
	"fmt"
	"log"
	"os"

	"statistics-import-service/service/database"
	"statistics-import-service/service/dispatch"
	"statistics-import-service/service/distributed_lock"
	"statistics-import-service/service/event"
	"statistics-import-service/service/importer"
	"statistics-import-service/service/scheduler"
	"statistics-import-service/service/storage"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB                 *gorm.DB
	GlobalLock         distributed_lock.DistributedLock
	GlobalLockExecutor *distributed_lock.LockExecutor
	GlobalStore        storage.BlobStore
	GlobalCache        *importer.ImporterCache
	GlobalStatusSvc    *importer.StatusService
	GlobalBatchSvc     *importer.BatchService
	GlobalOrchestrator *importer.Orchestrator
	GlobalEventService *event.ImportEventService
	GlobalWatchdog     *scheduler.ImportWatchdog
	GlobalDispatcher   *dispatch.KafkaDispatcher
)

func init() {
	initDatabase()
	runMigrations()
	initServices()
}

// initDatabase 初始化数据库连接
func initDatabase() {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		// 使用分离的环境变量构建连接字符串
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "statistics")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	log.Println("数据库连接成功")
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移
func runMigrations() {
	if err := database.AutoMigrate(DB); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}
}

// initServices 初始化服务
func initServices() {
	// 分布式锁：优先Redis，不可用时降级为进程内锁（单实例模式）
	redisLock, err := distributed_lock.NewRedisLock()
	if err != nil {
		log.Printf("Redis分布式锁不可用，降级为进程内锁: %v", err)
		GlobalLock = distributed_lock.NewMemoryLock()
	} else {
		GlobalLock = redisLock
	}
	GlobalLockExecutor = distributed_lock.NewLockExecutor(GlobalLock)

	// 文件存储
	GlobalStore, err = storage.NewFsStore("")
	if err != nil {
		log.Fatalf("初始化文件存储失败: %v", err)
	}

	// 导入流水线服务
	GlobalCache = importer.NewImporterCache()
	GlobalStatusSvc = importer.NewStatusService(DB, GlobalLockExecutor)
	GlobalBatchSvc = importer.NewBatchService(DB, GlobalLockExecutor, GlobalStatusSvc)

	// 批次分发：配置了Kafka时走消息队列，否则批次在本进程内顺序执行
	var dispatcher importer.BatchDispatcher
	if os.Getenv("KAFKA_BROKERS") != "" {
		GlobalDispatcher = dispatch.NewKafkaDispatcher()
		dispatcher = GlobalDispatcher
	}
	GlobalOrchestrator = importer.NewOrchestrator(DB, GlobalStore, GlobalCache,
		GlobalStatusSvc, GlobalBatchSvc, dispatcher)

	// 批次消费者
	if GlobalDispatcher != nil {
		consumer := dispatch.NewBatchConsumer(GlobalOrchestrator.ImportBatch)
		go func() {
			if err := consumer.Run(context.Background()); err != nil {
				log.Printf("批次消费者退出: %v", err)
			}
		}()
	}

	// 导入事件推送，仅在PostgreSQL连接串可用时启用
	GlobalEventService = event.NewImportEventService(DB)
	if os.Getenv("DATABASE_URL") != "" {
		if err := GlobalEventService.Start(); err != nil {
			log.Printf("启动导入事件推送失败: %v", err)
		}
	}

	// 导入看门狗
	GlobalWatchdog = scheduler.NewImportWatchdog(DB, GlobalStatusSvc, GlobalBatchSvc, GlobalLockExecutor)
	if err := GlobalWatchdog.Start(); err != nil {
		log.Printf("启动导入看门狗失败: %v", err)
	}

	log.Println("服务初始化完成")
}
