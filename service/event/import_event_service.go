/*
 * @module service/event/import_event_service
 * @description 导入事件服务，监听数据库导入状态变更并通过SSE推送给客户端
 * @architecture 事件驱动架构 - 业务服务层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow 创建通知触发器 -> pq监听 -> 状态变更通知 -> SSE推送
 * @rules 仅在PostgreSQL环境下启用监听；事件队列满时丢弃而不阻塞状态更新路径
 * @dependencies github.com/lib/pq, gorm.io/gorm
 * @refs api/controllers/import_controller.go, service/importer/status_service.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// notifyChannel 导入状态变更的通知通道名
const notifyChannel = "import_status_events"

// ImportStatusEvent 一次导入状态变更事件
type ImportStatusEvent struct {
	ImportID string `json:"import_id"`
	Status   string `json:"status"`
	Percent  int    `json:"percent"`
}

// SSEClient 一个SSE客户端连接
type SSEClient struct {
	ID      string
	Channel chan *ImportStatusEvent
	Done    chan bool
}

// ImportEventService 导入事件服务
type ImportEventService struct {
	db          *gorm.DB
	mu          sync.RWMutex
	connections map[string]*SSEClient
	listener    *pq.Listener
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewImportEventService 创建导入事件服务实例
func NewImportEventService(db *gorm.DB) *ImportEventService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ImportEventService{
		db:          db,
		connections: make(map[string]*SSEClient),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 创建通知触发器并启动数据库监听
func (s *ImportEventService) Start() error {
	if err := s.ensureNotifyTrigger(); err != nil {
		return err
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("缺少 DATABASE_URL，无法启动导入事件监听")
	}

	s.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Error("导入事件监听器异常", "event", ev, "error", err)
		}
	})
	if err := s.listener.Listen(notifyChannel); err != nil {
		return fmt.Errorf("订阅通知通道失败: %w", err)
	}

	go s.listenLoop()
	slog.Info("导入事件监听已启动", "channel", notifyChannel)
	return nil
}

// Stop 停止监听并断开全部客户端
func (s *ImportEventService) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
}

// ensureNotifyTrigger 在导入表上创建状态变更通知函数和触发器
func (s *ImportEventService) ensureNotifyTrigger() error {
	function := fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION notify_import_status() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('%s', json_build_object(
				'import_id', NEW.id,
				'status', NEW.status,
				'percent', NEW.stage_percentage_complete
			)::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`, notifyChannel)
	if err := s.db.Exec(function).Error; err != nil {
		return fmt.Errorf("创建通知函数失败: %w", err)
	}

	trigger := `
		DROP TRIGGER IF EXISTS data_imports_notify_status ON data_imports;
		CREATE TRIGGER data_imports_notify_status
		AFTER UPDATE OF status, stage_percentage_complete ON data_imports
		FOR EACH ROW EXECUTE FUNCTION notify_import_status()`
	if err := s.db.Exec(trigger).Error; err != nil {
		return fmt.Errorf("创建通知触发器失败: %w", err)
	}
	return nil
}

// listenLoop 通知分发循环
func (s *ImportEventService) listenLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case notification := <-s.listener.Notify:
			if notification == nil {
				continue // 连接重建期间会收到空通知
			}
			var statusEvent ImportStatusEvent
			if err := json.Unmarshal([]byte(notification.Extra), &statusEvent); err != nil {
				slog.Error("导入事件反序列化失败", "error", err)
				continue
			}
			s.broadcast(&statusEvent)
		case <-time.After(90 * time.Second):
			// 长时间无通知时主动探活
			go s.listener.Ping()
		}
	}
}

// AddConnection 注册SSE客户端
func (s *ImportEventService) AddConnection(connectionID string) *SSEClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := &SSEClient{
		ID:      connectionID,
		Channel: make(chan *ImportStatusEvent, 100),
		Done:    make(chan bool),
	}
	s.connections[connectionID] = client
	slog.Debug("SSE连接已建立", "connection_id", connectionID)
	return client
}

// RemoveConnection 移除SSE客户端
func (s *ImportEventService) RemoveConnection(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, exists := s.connections[connectionID]; exists {
		close(client.Done)
		delete(s.connections, connectionID)
		slog.Debug("SSE连接已断开", "connection_id", connectionID)
	}
}

// broadcast 向全部客户端推送事件，队列满时丢弃
func (s *ImportEventService) broadcast(statusEvent *ImportStatusEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.connections {
		select {
		case client.Channel <- statusEvent:
		default:
			slog.Warn("SSE事件队列已满，跳过推送", "connection_id", client.ID)
		}
	}
}
