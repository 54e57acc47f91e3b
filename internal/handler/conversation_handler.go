// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/service"
	"farm-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 返回用户保存在 Redis 中的最近对话。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 返回当前用户的最近对话，?limit=N 只取最后 N 条消息。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证用户", "data": nil})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "limit 必须是非负整数", "data": nil})
			return
		}
		limit = n
	}

	history, err := h.service.GetConversationHistory(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("GetConversations: user %d, error: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "Failed to retrieve conversation history", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": lastMessages(history, limit)})
}

// lastMessages 返回最后 limit 条消息，limit 为 0 时返回全部。
func lastMessages(history []model.ChatMessage, limit int) []model.ChatMessage {
	if history == nil {
		return []model.ChatMessage{}
	}
	if limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}
