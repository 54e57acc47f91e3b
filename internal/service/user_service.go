// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/repository"
	"farm-advisor-go/pkg/hash"
	"farm-advisor-go/pkg/log"
	"farm-advisor-go/pkg/token"

	"gorm.io/gorm"
)

// 用户相关的业务错误。
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrUserNotFound       = errors.New("user not found")
)

const minPasswordLen = 6

// RegisterInput 是注册时提交的用户资料。
type RegisterInput struct {
	Email             string
	Password          string
	Name              string
	PrimaryCrop       string
	Region            string
	PreferredLanguage string
}

// ProfileUpdate 是可由用户自行修改的资料字段；nil 表示不修改。
type ProfileUpdate struct {
	Name              *string
	PrimaryCrop       *string
	Region            *string
	PreferredLanguage *string
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(input RegisterInput) (*model.User, error)
	Login(email, password string) (accessToken, refreshToken string, err error)
	GetProfile(email string) (*model.User, error)
	UpdateProfile(user *model.User, update ProfileUpdate) (*model.User, error)
	Logout(ctx context.Context, tokenString string) error
	IsTokenRevoked(ctx context.Context, tokenString string) bool
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	WebsocketToken(user *model.User) (string, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(input RegisterInput) (*model.User, error) {
	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLen {
		return nil, ErrWeakPassword
	}

	// 1. 检查邮箱是否已存在
	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	language := strings.TrimSpace(input.PreferredLanguage)
	if language == "" {
		language = model.DefaultLanguage
	}

	// 3. 创建新用户
	newUser := &model.User{
		Email:             email,
		Password:          hashedPassword,
		Name:              strings.TrimSpace(input.Name),
		Role:              model.RoleUser,
		PrimaryCrop:       strings.TrimSpace(input.PrimaryCrop),
		Region:            strings.TrimSpace(input.Region),
		PreferredLanguage: language,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		log.Errorf("[UserService] 创建用户失败, email: %s, error: %v", email, err)
		return nil, fmt.Errorf("create user: %w", err)
	}
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(email, password string) (accessToken, refreshToken string, err error) {
	// 1. 查找用户
	user, err := s.userRepo.FindByEmail(normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}

	// 3. 生成 access token 和 refresh token
	return s.issueTokens(user)
}

func (s *userService) issueTokens(user *model.User) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据邮箱获取用户详细信息。
func (s *userService) GetProfile(email string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile 更新用户的可编辑资料，语言留空时回退为默认语言。
func (s *userService) UpdateProfile(user *model.User, update ProfileUpdate) (*model.User, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}
	if update.Name != nil {
		user.Name = strings.TrimSpace(*update.Name)
	}
	if update.PrimaryCrop != nil {
		user.PrimaryCrop = strings.TrimSpace(*update.PrimaryCrop)
	}
	if update.Region != nil {
		user.Region = strings.TrimSpace(*update.Region)
	}
	if update.PreferredLanguage != nil {
		user.PreferredLanguage = strings.TrimSpace(*update.PreferredLanguage)
		if user.PreferredLanguage == "" {
			user.PreferredLanguage = model.DefaultLanguage
		}
	}
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout 处理用户登出逻辑，将 token 加入 Redis 黑名单，
// token 的剩余有效期将作为黑名单记录的过期时间。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	if s.blacklist == nil {
		return nil
	}
	return s.blacklist.Add(ctx, tokenString, time.Until(claims.ExpiresAt.Time))
}

// IsTokenRevoked 检查 token 是否已登出。Redis 不可用时按未登出处理。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) bool {
	if s.blacklist == nil {
		return false
	}
	revoked, err := s.blacklist.Contains(ctx, tokenString)
	if err != nil {
		log.Warnf("[UserService] 查询 token 黑名单失败: %v", err)
		return false
	}
	return revoked
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error) {
	// 1. 验证 refresh token 是否有效
	claims, err := s.jwtManager.VerifyPurpose(refreshTokenString, token.PurposeRefresh)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}

	// 2. 检查用户是否存在
	user, err := s.userRepo.FindByEmail(claims.Email)
	if err != nil {
		return "", "", ErrUserNotFound
	}

	// 3. 签发新的 token
	return s.issueTokens(user)
}

// WebsocketToken 为已登录用户签发 WebSocket 握手令牌。
func (s *userService) WebsocketToken(user *model.User) (string, error) {
	if user == nil {
		return "", ErrUserNotFound
	}
	return s.jwtManager.GenerateWebsocketToken(user.ID, user.Email, user.Role)
}
