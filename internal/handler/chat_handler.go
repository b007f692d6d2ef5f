package handler

import (
	"errors"
	"figmant-go/internal/middleware"
	"figmant-go/internal/service"
	"figmant-go/pkg/log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ChatHandler 负责处理聊天相关的 API 请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessageRequest 定义了消息提交 API 的请求体结构。
type SendMessageRequest struct {
	Message  string `json:"message"`
	Template string `json:"template,omitempty"`
}

// SendMessage 提交一条消息并返回助手回复。
// 分析服务不可用时返回的也是 200：用户侧看到的是致歉回复而不是错误。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求负载"})
		return
	}

	reply, err := h.chatService.SendMessage(c.Request.Context(), userID, req.Message, req.Template)
	if err != nil {
		var serr *service.SubmissionError
		if errors.As(err, &serr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": serr.Reason})
			return
		}
		log.Errorf("[ChatHandler] 提交消息失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": reply})
}

// CanSend 返回当前输入能否提交，供前端预检发送按钮状态。
func (h *ChatHandler) CanSend(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	text := c.Query("message")
	canSend, reason := h.chatService.CanSend(userID, text)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"canSend": canSend,
		"reason":  reason,
	}})
}

// GetTranscript 返回当前用户的聊天记录。
func (h *ChatHandler) GetTranscript(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	messages, err := h.chatService.GetTranscript(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("[ChatHandler] 获取聊天记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": messages})
}

// GetLastAnalysisDebug 返回最近一次分析的调试信息。
func (h *ChatHandler) GetLastAnalysisDebug(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "未认证"})
		return
	}

	debugInfo, err := h.chatService.GetLastAnalysisDebug(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("[ChatHandler] 获取调试信息失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": debugInfo})
}
