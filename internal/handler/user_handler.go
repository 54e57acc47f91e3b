// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"farm-advisor-go/internal/middleware"
	"farm-advisor-go/internal/service"
	"farm-advisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理所有与普通用户相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 定义了用户注册 API 的请求体结构。
type RegisterRequest struct {
	Email             string `json:"email" binding:"required,email"`
	Password          string `json:"password" binding:"required"`
	Name              string `json:"name"`
	PrimaryCrop       string `json:"primaryCrop"`
	Region            string `json:"region"`
	PreferredLanguage string `json:"preferredLanguage"`
}

// Register 处理用户注册请求。
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Register: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：邮箱格式不正确或密码为空",
		})
		return
	}

	user, err := h.userService.Register(service.RegisterInput{
		Email:             req.Email,
		Password:          req.Password,
		Name:              req.Name,
		PrimaryCrop:       req.PrimaryCrop,
		Region:            req.Region,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		log.Warnf("Register: User registration failed for '%s', error: %v", req.Email, err)
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"code": http.StatusConflict, "message": "Email already registered"})
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "注册失败"})
		}
		return
	}

	log.Infof("User '%s' registered successfully", user.Email)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "User registered successfully",
		"data":    user,
	})
}

// GetProfile 获取当前登录用户的个人信息。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": user, "message": "success"})
}

// UpdateProfileRequest 定义了修改个人资料 API 的请求体，缺省字段保持不变。
type UpdateProfileRequest struct {
	Name              *string `json:"name"`
	PrimaryCrop       *string `json:"primaryCrop"`
	Region            *string `json:"region"`
	PreferredLanguage *string `json:"preferredLanguage"`
}

// UpdateProfile 修改当前用户的作物、地区、语言等资料。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("UpdateProfile: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}
	user := middleware.CurrentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "未认证用户或无法获取用户信息"})
		return
	}

	updated, err := h.userService.UpdateProfile(user, service.ProfileUpdate{
		Name:              req.Name,
		PrimaryCrop:       req.PrimaryCrop,
		Region:            req.Region,
		PreferredLanguage: req.PreferredLanguage,
	})
	if err != nil {
		log.Errorf("UpdateProfile: Failed for user '%s', error: %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "资料更新失败"})
		return
	}
	log.Infof("User '%s' updated profile", user.Email)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Profile updated", "data": updated})
}
