package handler

import (
	"figmant-go/internal/middleware"
	"figmant-go/internal/service"
	"figmant-go/pkg/log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// SearchHandler 负责处理洞察检索相关的 API 请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 在当前用户的分析洞察里做关键词检索。
func (h *SearchHandler) Search(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少查询参数 q"})
		return
	}
	topK, _ := strconv.Atoi(c.DefaultQuery("topK", "10"))

	hits, err := h.searchService.SearchInsights(c.Request.Context(), userID, query, topK)
	if err != nil {
		log.Errorf("[SearchHandler] 检索失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": hits})
}
