// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/service"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatRequest 是聊天接口的请求体，message 与 image 至少提供一个。
type ChatRequest struct {
	Message string `json:"message"`
	Image   string `json:"image"`
}

// ChatHandler 负责处理聊天请求（HTTP 与 WebSocket）。
type ChatHandler struct {
	chatService  service.ChatService
	recorder     service.ChatRecorder
	userService  service.UserService
	jwtManager   *token.JWTManager
	maxBodyBytes int64
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, recorder service.ChatRecorder, userService service.UserService, jwtManager *token.JWTManager, maxBodyBytes int64) *ChatHandler {
	return &ChatHandler{
		chatService:  chatService,
		recorder:     recorder,
		userService:  userService,
		jwtManager:   jwtManager,
		maxBodyBytes: maxBodyBytes,
	}
}

// StatusFor 将核心流程的结果映射为 HTTP 状态码。
func StatusFor(result service.ChatResult) int {
	switch {
	case result.Kind == service.KindInternalError:
		return http.StatusInternalServerError
	case result.ClientError:
		return http.StatusBadRequest
	default:
		return http.StatusOK
	}
}

// Chat 处理 POST /chat。匿名用户也可以提问。
func (h *ChatHandler) Chat(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warnf("Chat: 请求体过大, limit: %d", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"response": service.TooLargeReply})
			return
		}
		// 无法解析的请求体按空请求处理
		log.Warnf("Chat: Invalid request payload, error: %v", err)
		req = ChatRequest{}
	}

	result := h.handle(c.Request.Context(), middleware.CurrentUser(c), req)
	c.JSON(StatusFor(result), gin.H{"response": result.Reply})
}

func (h *ChatHandler) handle(ctx context.Context, user *model.User, req ChatRequest) service.ChatResult {
	result := h.chatService.HandleChat(ctx, user.Profile(), req.Message, req.Image)
	if result.Persistable() && h.recorder != nil {
		// 即使客户端断开，也要把已生成的回复记下来
		h.recorder.Record(context.WithoutCancel(ctx), result, req.Image)
	}
	return result
}

// GetWebsocketToken 为已登录用户签发 WebSocket 握手令牌。
func (h *ChatHandler) GetWebsocketToken(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证用户", "data": nil})
		return
	}
	wsToken, err := h.userService.WebsocketToken(user)
	if err != nil {
		log.Error("GetWebsocketToken: 签发令牌失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "签发令牌失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"token": wsToken}})
}

// wsReply 是 WebSocket 下发的单条回复。
type wsReply struct {
	Response string           `json:"response"`
	Kind     service.ChatKind `json:"kind"`
}

// Handle 处理一个传入的 WebSocket 连接，每条 JSON 消息走一次完整的问答流程。
func (h *ChatHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyPurpose(c.Param("token"), token.PurposeWebsocket)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(claims.Email)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	if h.maxBodyBytes > 0 {
		conn.SetReadLimit(h.maxBodyBytes)
	}

	log.Infof("WebSocket 连接已建立，用户: %s", user.Email)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 纯文本帧视为文本提问
			req = ChatRequest{Message: string(message)}
		}

		result := h.handle(c.Request.Context(), user, req)
		if err := conn.WriteJSON(wsReply{Response: result.Reply, Kind: result.Kind}); err != nil {
			log.Warnf("写入 WebSocket 回复失败: %v", err)
			break
		}
	}
}
