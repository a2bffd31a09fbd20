/*
 * @module api/controllers/import_controller
 * @description 数据导入控制器，提供导入创建、查询、取消和SSE进度订阅API
 * @architecture RESTful API架构 - 控制器层
 * @documentReference ai_docs/import_pipeline_design.md
 * @stateFlow HTTP请求 -> 编排器/状态服务 -> 响应返回
 * @rules 创建接口只负责入队，流水线在后台goroutine中推进，进度通过查询或SSE获取
 * @dependencies statistics-import-service/service, github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/importer/orchestrator.go, service/event/import_event_service.go
 */

package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"statistics-import-service/service"
	"statistics-import-service/service/event"
	"statistics-import-service/service/importer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportController 数据导入控制器
type ImportController struct {
	orchestrator  *importer.Orchestrator
	statusService *importer.StatusService
	eventService  *event.ImportEventService
}

// NewImportController 创建导入控制器实例
func NewImportController() *ImportController {
	return &ImportController{
		orchestrator:  service.GlobalOrchestrator,
		statusService: service.GlobalStatusSvc,
		eventService:  service.GlobalEventService,
	}
}

// CreateImport 创建数据导入
// @Summary 创建数据导入
// @Description 为指定发布下的主体创建一次数据导入，同名主体整体替换，流水线在后台执行
// @Tags 数据导入
// @Accept json
// @Produce json
// @Param request body importer.CreateImportRequest true "导入创建请求"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /imports [post]
func (c *ImportController) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req importer.CreateImportRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.ReleaseID == "" || req.SubjectName == "" || req.DataFilePath == "" || req.MetaFilePath == "" {
		render.JSON(w, r, BadRequestResponse("release_id、subject_name、data_file_path、meta_file_path均不能为空", nil))
		return
	}

	dataImport, err := c.orchestrator.CreateImport(r.Context(), &req)
	if err != nil {
		if errors.Is(err, importer.ErrImportInProgress) {
			render.JSON(w, r, ConflictResponse("该数据文件已有进行中的导入", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("创建数据导入失败", err))
		return
	}

	// 流水线在后台推进，请求上下文结束不影响执行
	go func() {
		if err := c.orchestrator.ProcessImport(context.Background(), dataImport.ID); err != nil {
			slog.Error("导入流水线执行失败", "import_id", dataImport.ID, "error", err)
		}
	}()

	render.JSON(w, r, SuccessResponse("数据导入已创建", dataImport))
}

// GetImport 查询导入状态
// @Summary 查询导入状态
// @Description 查询一次数据导入的状态、阶段进度和错误信息
// @Tags 数据导入
// @Produce json
// @Param id path string true "导入ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /imports/{id} [get]
func (c *ImportController) GetImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "id")

	dataImport, err := c.statusService.GetImport(r.Context(), importID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			render.JSON(w, r, NotFoundResponse("导入记录不存在", nil))
			return
		}
		render.JSON(w, r, InternalErrorResponse("查询导入状态失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("查询成功", dataImport))
}

// CancelImport 取消导入
// @Summary 取消导入
// @Description 请求取消一次进行中的数据导入，各阶段在检查点发现后停止，最终状态由看门狗收尾
// @Tags 数据导入
// @Produce json
// @Param id path string true "导入ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /imports/{id}/cancel [post]
func (c *ImportController) CancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "id")

	if _, err := c.statusService.GetImport(r.Context(), importID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			render.JSON(w, r, NotFoundResponse("导入记录不存在", nil))
			return
		}
		render.JSON(w, r, InternalErrorResponse("查询导入状态失败", err))
		return
	}

	if err := c.statusService.CancelImport(r.Context(), importID); err != nil {
		render.JSON(w, r, InternalErrorResponse("取消导入失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("取消请求已受理", nil))
}

// HandleEvents 订阅导入状态事件
// @Summary 订阅导入状态事件
// @Description 通过SSE接收导入状态和进度变更推送
// @Tags 数据导入
// @Success 200 {string} string "SSE事件流"
// @Router /imports/events [get]
func (c *ImportController) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// 设置SSE响应头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	connectionID := uuid.New().String()
	client := c.eventService.AddConnection(connectionID)
	defer c.eventService.RemoveConnection(connectionID)

	// 发送连接成功事件
	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"connection_id\":\"%s\",\"timestamp\":\"%s\"}\n\n",
		connectionID, time.Now().Format(time.RFC3339))
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	for {
		select {
		case statusEvent := <-client.Channel:
			fmt.Fprintf(w, "data: %s\n\n", toJSON(statusEvent))
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}

		case <-client.Done:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func toJSON(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}
