package handler

import (
	"errors"
	"figmant-go/internal/service"
	"figmant-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TemplateHandler 负责处理分析模板相关的 API 请求。
type TemplateHandler struct {
	templateService service.TemplateService
}

// NewTemplateHandler 创建一个新的 TemplateHandler 实例。
func NewTemplateHandler(templateService service.TemplateService) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

// List 返回全部分析模板。
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.templateService.List()
	if err != nil {
		log.Errorf("[TemplateHandler] 查询模板列表失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": templates})
}

// Get 按名称返回模板。
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.templateService.GetByName(c.Param("name"))
	if err != nil {
		if errors.Is(err, service.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "模板不存在"})
			return
		}
		log.Errorf("[TemplateHandler] 查询模板失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": template})
}
