package handler

import (
	"errors"
	"figmant-go/internal/middleware"
	"figmant-go/internal/service"
	"figmant-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// BatchHandler 负责处理批次分析相关的 API 请求。
type BatchHandler struct {
	batchService service.BatchService
}

// NewBatchHandler 创建一个新的 BatchHandler 实例。
func NewBatchHandler(batchService service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

// CreateBatchRequest 定义了批次创建 API 的请求体结构。
type CreateBatchRequest struct {
	Name          string   `json:"name" binding:"required"`
	AttachmentIDs []string `json:"attachmentIds" binding:"required"`
}

// Create 创建一个分析批次。
func (h *BatchHandler) Create(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	batch, err := h.batchService.CreateBatch(c.Request.Context(), userID, req.Name, req.AttachmentIDs)
	if err != nil {
		if errors.Is(err, service.ErrNoAttachmentsInBatch) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[BatchHandler] 创建批次失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": batch})
}

// List 返回当前用户的全部批次。
func (h *BatchHandler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	batches, err := h.batchService.ListBatches(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("[BatchHandler] 查询批次列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": batches})
}

// Get 返回指定批次。
func (h *BatchHandler) Get(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	batch, err := h.batchService.GetBatch(c.Request.Context(), userID, c.Param("batchId"))
	if err != nil {
		if errors.Is(err, service.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "批次不存在"})
			return
		}
		log.Errorf("[BatchHandler] 查询批次失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": batch})
}

// Analyze 对批次执行初次分析，产生版本 1。
func (h *BatchHandler) Analyze(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	version, err := h.batchService.RunAnalysis(c.Request.Context(), userID, c.Param("batchId"))
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": version})
}

// ModifyRequest 定义了迭代分析 API 的请求体结构。
type ModifyRequest struct {
	ModificationSummary string `json:"modificationSummary" binding:"required"`
}

// Modify 基于修改说明执行迭代分析，产生下一个版本。
func (h *BatchHandler) Modify(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req ModifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "修改说明不能为空"})
		return
	}

	version, err := h.batchService.RunModification(c.Request.Context(), userID, c.Param("batchId"), req.ModificationSummary)
	if err != nil {
		h.writeAnalysisError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": version})
}

// ListVersions 返回批次的版本历史。
func (h *BatchHandler) ListVersions(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	versions, err := h.batchService.ListVersions(c.Request.Context(), userID, c.Param("batchId"))
	if err != nil {
		if errors.Is(err, service.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "批次不存在"})
			return
		}
		log.Errorf("[BatchHandler] 查询版本历史失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": versions})
}

func (h *BatchHandler) writeAnalysisError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "批次不存在"})
	case errors.Is(err, service.ErrEmptyModificationSummary),
		errors.Is(err, service.ErrBatchNotAnalyzed),
		errors.Is(err, service.ErrBatchAlreadyAnalyzed),
		errors.Is(err, service.ErrNoAttachmentsInBatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		log.Errorf("[BatchHandler] 批次分析失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
