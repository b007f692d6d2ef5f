package handler

import (
	"figmant-go/internal/pipeline"
	"figmant-go/pkg/log"
	"figmant-go/pkg/token"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// StatusHandler 通过 WebSocket 向前端推送附件状态变更。
type StatusHandler struct {
	store      *pipeline.StatusStore
	jwtManager *token.JWTManager
}

// NewStatusHandler 创建一个新的 StatusHandler 实例。
func NewStatusHandler(store *pipeline.StatusStore, jwtManager *token.JWTManager) *StatusHandler {
	return &StatusHandler{store: store, jwtManager: jwtManager}
}

// Stream 处理一个传入的 WebSocket 连接。
// 浏览器的 WebSocket API 不支持自定义请求头，token 通过路径参数传递。
func (h *StatusHandler) Stream(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[StatusHandler] WebSocket 升级失败: %v", err)
		return
	}
	defer conn.Close()

	userID := claims.UserID
	log.Infof("[StatusHandler] 状态推送连接已建立: user: %d", userID)

	// 连接建立后先推送当前附件快照，再订阅增量变更
	for _, att := range h.store.List(userID) {
		if err := conn.WriteJSON(att); err != nil {
			log.Warnf("[StatusHandler] 推送附件快照失败: %v", err)
			return
		}
	}

	updates, cancel := h.store.Subscribe()
	defer cancel()

	// 读循环只用来感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			log.Infof("[StatusHandler] 状态推送连接已断开: user: %d", userID)
			return
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case att, ok := <-updates:
			if !ok {
				return
			}
			if att.UserID != userID {
				continue
			}
			if err := conn.WriteJSON(att); err != nil {
				log.Warnf("[StatusHandler] 推送状态变更失败: %v", err)
				return
			}
		}
	}
}
