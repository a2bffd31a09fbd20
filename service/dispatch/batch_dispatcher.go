/*
 * @module service/dispatch/batch_dispatcher
 * @description 批次任务分发器，通过Kafka投递和消费"处理导入I的第N批"消息
 * @architecture 适配器模式 - 封装第三方Kafka客户端
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 编排器投递批次消息 -> 消费者组拉取 -> 调用批次导入入口 -> 确认消息
 * @rules 消息只携带导入ID、批次号和批次文件路径，不定义队列的线协议细节
 * @dependencies github.com/segmentio/kafka-go, encoding/json
 * @refs service/importer/orchestrator.go
 */

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// defaultTopic 批次任务主题
const defaultTopic = "import-batches"

// BatchMessage 批次任务消息体
type BatchMessage struct {
	ImportID      string `json:"import_id"`
	BatchNo       int    `json:"batch_no"`
	BatchFilePath string `json:"batch_file_path"`
}

// BatchHandler 批次消息处理函数
type BatchHandler func(ctx context.Context, importID string, batchNo int) error

// KafkaDispatcher Kafka批次任务分发器
type KafkaDispatcher struct {
	writer *kafka.Writer
	topic  string
}

// NewKafkaDispatcher 创建Kafka分发器实例
func NewKafkaDispatcher() *KafkaDispatcher {
	brokers := strings.Split(getEnvWithDefault("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getEnvWithDefault("KAFKA_IMPORT_TOPIC", defaultTopic)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaDispatcher{writer: writer, topic: topic}
}

// DispatchBatch 投递一条批次任务消息，消息键为导入ID
func (d *KafkaDispatcher) DispatchBatch(ctx context.Context, importID string, batchNo int, batchFilePath string) error {
	payload, err := json.Marshal(BatchMessage{
		ImportID:      importID,
		BatchNo:       batchNo,
		BatchFilePath: batchFilePath,
	})
	if err != nil {
		return fmt.Errorf("序列化批次消息失败: %w", err)
	}

	err = d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(importID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("投递批次消息失败: %w", err)
	}

	slog.Debug("批次消息已投递",
		"topic", d.topic,
		"import_id", importID,
		"batch_no", batchNo)
	return nil
}

// Close 关闭生产者
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// BatchConsumer 批次任务消费者
type BatchConsumer struct {
	reader  *kafka.Reader
	handler BatchHandler
}

// NewBatchConsumer 创建批次任务消费者实例
func NewBatchConsumer(handler BatchHandler) *BatchConsumer {
	brokers := strings.Split(getEnvWithDefault("KAFKA_BROKERS", "localhost:9092"), ",")
	topic := getEnvWithDefault("KAFKA_IMPORT_TOPIC", defaultTopic)
	groupID := getEnvWithDefault("KAFKA_CONSUMER_GROUP", "import-batch-workers")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	return &BatchConsumer{reader: reader, handler: handler}
}

// Run 消费循环，上下文取消时退出
// 处理失败的消息记录日志后继续消费，失败语义由批次服务落到导入记录上
func (c *BatchConsumer) Run(ctx context.Context) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("拉取批次消息失败: %w", err)
		}

		var batch BatchMessage
		if err := json.Unmarshal(message.Value, &batch); err != nil {
			slog.Error("批次消息反序列化失败", "error", err)
			c.commit(ctx, message)
			continue
		}

		if err := c.handler(ctx, batch.ImportID, batch.BatchNo); err != nil {
			slog.Error("批次处理失败",
				"import_id", batch.ImportID,
				"batch_no", batch.BatchNo,
				"error", err)
		}
		c.commit(ctx, message)
	}
}

func (c *BatchConsumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		slog.Error("提交消息位点失败", "error", err)
	}
}

// Close 关闭消费者
func (c *BatchConsumer) Close() error {
	return c.reader.Close()
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
