// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/service"
	"farm-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService     service.AdminService
	knowledgeService service.KnowledgeService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService, knowledgeService service.KnowledgeService) *AdminHandler {
	return &AdminHandler{
		adminService:     adminService,
		knowledgeService: knowledgeService,
	}
}

// ListUsers 处理获取用户列表的请求。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.adminService.ListUsers()
	if err != nil {
		log.Error("ListUsers: Failed to list users", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": users})
}

// ListChats 返回最近的聊天记录。
func (h *AdminHandler) ListChats(c *gin.Context) {
	chats, err := h.adminService.ListLatestChats()
	if err != nil {
		log.Error("ListChats: Failed to list chats", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取聊天记录失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": chats})
}

// ListUserChats 返回指定用户的聊天记录。
func (h *AdminHandler) ListUserChats(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		log.Warnf("ListUserChats: Invalid user ID format, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的用户 ID", "data": nil})
		return
	}
	chats, err := h.adminService.ListUserChats(uint(userID))
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "用户不存在", "data": nil})
			return
		}
		log.Errorf("ListUserChats: user %d, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取聊天记录失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": chats})
}

// SearchChats 在聊天索引中全文检索。
func (h *AdminHandler) SearchChats(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "查询参数 q 不能为空", "data": nil})
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))

	results, err := h.adminService.SearchChats(c.Request.Context(), query, size)
	if err != nil {
		if errors.Is(err, service.ErrSearchUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "搜索服务未启用", "data": nil})
			return
		}
		log.Errorf("SearchChats: query '%s' failed, error: %v", query, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "搜索失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": results})
}

// GetAllConversations handles the request to get all conversation histories.
func (h *AdminHandler) GetAllConversations(c *gin.Context) {
	// Parse optional userid
	var userID *uint
	if userIDStr := c.Query("userid"); userIDStr != "" {
		id, err := strconv.ParseUint(userIDStr, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid user ID format", "data": nil})
			return
		}
		uid := uint(id)
		userID = &uid
	}

	// Parse optional time range
	var startTime, endTime *time.Time
	timeLayout := "2006-01-02"
	if startDateStr := c.Query("start_date"); startDateStr != "" {
		t, err := time.Parse(timeLayout, startDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid start_date format, use YYYY-MM-DD", "data": nil})
			return
		}
		startTime = &t
	}
	if endDateStr := c.Query("end_date"); endDateStr != "" {
		t, err := time.Parse(timeLayout, endDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "Invalid end_date format, use YYYY-MM-DD", "data": nil})
			return
		}
		// Include the whole day
		t = t.Add(24*time.Hour - time.Second)
		endTime = &t
	}

	conversations, err := h.adminService.GetAllConversations(c.Request.Context(), userID, startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": err.Error(), "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversations})
}

// GetKnowledge 返回知识库文件的原始内容。
func (h *AdminHandler) GetKnowledge(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", h.knowledgeService.Document())
}

// UpdateKnowledge 用请求体整体替换知识库文件，校验失败时保留旧内容。
func (h *AdminHandler) UpdateKnowledge(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "读取请求体失败", "data": nil})
		return
	}
	admin := middleware.CurrentUser(c)
	if admin == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	entries, err := h.knowledgeService.Update(c.Request.Context(), data, admin.ID)
	if err != nil {
		if errors.Is(err, service.ErrKnowledgeInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
			return
		}
		log.Errorf("UpdateKnowledge: admin '%s' failed, error: %v", admin.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "保存知识库失败", "data": nil})
		return
	}

	log.Infof("Admin user '%s' replaced the knowledge base (%d entries)", admin.Email, entries)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"entries": entries}})
}

// ReloadKnowledge 从磁盘重新加载知识库并通知其他实例。
func (h *AdminHandler) ReloadKnowledge(c *gin.Context) {
	var adminID uint
	if admin := middleware.CurrentUser(c); admin != nil {
		adminID = admin.ID
	}
	entries := h.knowledgeService.Reload(c.Request.Context(), adminID)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"entries": entries}})
}

// LeafImageURL 为存档的叶片图片生成预签名下载链接。
func (h *AdminHandler) LeafImageURL(c *gin.Context) {
	object := strings.TrimPrefix(c.Param("object"), "/")
	url, err := h.adminService.LeafImageURL(c.Request.Context(), object)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrImageStorageDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "图片存储未启用", "data": nil})
		case errors.Is(err, service.ErrInvalidImageObject):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error(), "data": nil})
		default:
			log.Errorf("LeafImageURL: object '%s' failed, error: %v", object, err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "生成下载链接失败", "data": nil})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"url": url}})
}
