// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/service"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// 上下文中的键。
const (
	ContextUser   = "user"
	ContextClaims = "claims"
	ContextToken  = "token"
)

const bearerPrefix = "Bearer "

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头"})
			return
		}
		if !authenticate(c, authHeader, jwtManager, userService) {
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware 允许匿名访问：没有授权头时以匿名身份继续，
// 带了授权头则必须是有效的 token。
func OptionalAuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		if !authenticate(c, authHeader, jwtManager, userService) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, authHeader string, jwtManager *token.JWTManager, userService service.UserService) bool {
	// Token 通常以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式"})
		return false
	}
	tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

	claims, err := jwtManager.VerifyPurpose(tokenString, token.PurposeAccess)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
		return false
	}
	if userService.IsTokenRevoked(c.Request.Context(), tokenString) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "token 已注销"})
		return false
	}

	// 使用 claims 中的邮箱从数据库获取完整的用户信息
	user, err := userService.GetProfile(claims.Email)
	if err != nil {
		log.Warnf("AuthMiddleware: 无法加载用户 '%s': %v", claims.Email, err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在"})
		return false
	}

	c.Set(ContextUser, user)
	c.Set(ContextClaims, claims)
	c.Set(ContextToken, tokenString)
	return true
}

// CurrentUser 返回 AuthMiddleware 注入的用户，匿名请求返回 nil。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
