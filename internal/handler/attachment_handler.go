// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"figmant-go/internal/middleware"
	"figmant-go/internal/service"
	"figmant-go/pkg/log"
	"figmant-go/pkg/tasks"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AttachmentHandler 负责处理附件相关的 API 请求。
type AttachmentHandler struct {
	attachmentService service.AttachmentService
}

// NewAttachmentHandler 创建一个新的 AttachmentHandler 实例。
func NewAttachmentHandler(attachmentService service.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

// Upload 处理文件附件上传：multipart 表单字段 file，可带多个。
func (h *AttachmentHandler) Upload(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的表单数据"})
		return
	}
	files := form.File["file"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少文件"})
		return
	}

	uploadKind := c.DefaultPostForm("kind", tasks.UploadKindChat)
	if uploadKind != tasks.UploadKindChat && uploadKind != tasks.UploadKindSingle {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的上传类型"})
		return
	}

	created := make([]interface{}, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "读取文件失败"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "读取文件失败"})
			return
		}

		att, err := h.attachmentService.CreateFileAttachment(c.Request.Context(), userID, fh.Filename, fh.Header.Get("Content-Type"), data, uploadKind)
		if err != nil {
			log.Errorf("[AttachmentHandler] 登记附件失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
			return
		}
		created = append(created, att)
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": created})
}

// AddURLRequest 定义了 URL 附件登记 API 的请求体结构。
type AddURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// AddURL 登记一个 URL 附件。
func (h *AttachmentHandler) AddURL(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req AddURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	att, err := h.attachmentService.CreateURLAttachment(c.Request.Context(), userID, req.URL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("[AttachmentHandler] 登记 URL 附件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": att})
}

// List 返回当前用户的全部附件。
func (h *AttachmentHandler) List(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	attachments := h.attachmentService.List(userID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": attachments})
}

// Remove 移除一个附件。重复移除返回成功。
func (h *AttachmentHandler) Remove(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	attachmentID := c.Param("id")
	if err := h.attachmentService.Remove(c.Request.Context(), userID, attachmentID); err != nil {
		if errors.Is(err, service.ErrAttachmentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "附件不存在"})
			return
		}
		log.Errorf("[AttachmentHandler] 移除附件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// Retry 对失败的附件重新投递处理任务。
func (h *AttachmentHandler) Retry(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	attachmentID := c.Param("id")
	if err := h.attachmentService.Retry(c.Request.Context(), userID, attachmentID); err != nil {
		switch {
		case errors.Is(err, service.ErrAttachmentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "附件不存在"})
		case errors.Is(err, service.ErrRetryNotAllowed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			log.Errorf("[AttachmentHandler] 重试附件失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}

// SupportedTypes 返回允许上传的内容类型列表。
func (h *AttachmentHandler) SupportedTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.attachmentService.SupportedTypes()})
}
