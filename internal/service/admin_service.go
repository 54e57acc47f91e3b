// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/repository"
)

// LatestChatsLimit 是管理后台一次展示的聊天记录条数。
const LatestChatsLimit = 500

// leafImageURLExpiry 是叶片图片预签名链接的有效期。
const leafImageURLExpiry = 15 * time.Minute

var (
	// ErrImageStorageDisabled 表示未启用对象存储。
	ErrImageStorageDisabled = errors.New("leaf image storage is not enabled")
	// ErrInvalidImageObject 表示请求的对象不在叶片图片前缀下。
	ErrInvalidImageObject = errors.New("invalid leaf image object")
)

// UserDetailResponse 定义了用户列表项的详细结构。
type UserDetailResponse struct {
	UserID            uint            `json:"userId"`
	Email             string          `json:"email"`
	Name              string          `json:"name"`
	Role              string          `json:"role"`
	PrimaryCrop       string          `json:"primaryCrop"`
	Region            string          `json:"region"`
	PreferredLanguage string          `json:"preferredLanguage"`
	CreatedAt         model.LocalTime `json:"createdAt"`
}

// ChatRecordResponse 定义了管理后台聊天记录列表项。
type ChatRecordResponse struct {
	ID          uint            `json:"id"`
	UserID      *uint           `json:"userId"`
	UserMessage string          `json:"userMessage"`
	BotResponse string          `json:"botResponse"`
	ImageObject string          `json:"imageObject,omitempty"`
	CreatedAt   model.LocalTime `json:"createdAt"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	ListUsers() ([]UserDetailResponse, error)
	ListLatestChats() ([]ChatRecordResponse, error)
	ListUserChats(userID uint) ([]ChatRecordResponse, error)
	SearchChats(ctx context.Context, query string, size int) ([]model.ChatSearchResultDTO, error)
	GetAllConversations(ctx context.Context, userID *uint, startTime, endTime *time.Time) ([]map[string]interface{}, error)
	LeafImageURL(ctx context.Context, object string) (string, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo         repository.UserRepository
	historyRepo      repository.ChatHistoryRepository
	conversationRepo repository.ConversationRepository
	searchService    SearchService
	images           repository.LeafImageRepository
}

// NewAdminService 创建一个新的 AdminService 实例。images 可以为 nil。
func NewAdminService(userRepo repository.UserRepository, historyRepo repository.ChatHistoryRepository, conversationRepo repository.ConversationRepository, searchService SearchService, images repository.LeafImageRepository) AdminService {
	return &adminService{
		userRepo:         userRepo,
		historyRepo:      historyRepo,
		conversationRepo: conversationRepo,
		searchService:    searchService,
		images:           images,
	}
}

// ListUsers 返回全部用户，最新注册的在前。
func (s *adminService) ListUsers() ([]UserDetailResponse, error) {
	users, err := s.userRepo.FindAll()
	if err != nil {
		return nil, err
	}
	out := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		out = append(out, UserDetailResponse{
			UserID:            u.ID,
			Email:             u.Email,
			Name:              u.Name,
			Role:              u.Role,
			PrimaryCrop:       u.PrimaryCrop,
			Region:            u.Region,
			PreferredLanguage: u.PreferredLanguage,
			CreatedAt:         model.LocalTime(u.CreatedAt),
		})
	}
	return out, nil
}

// ListLatestChats 返回最近的 LatestChatsLimit 条聊天记录。
func (s *adminService) ListLatestChats() ([]ChatRecordResponse, error) {
	records, err := s.historyRepo.FindLatest(LatestChatsLimit)
	if err != nil {
		return nil, err
	}
	return toChatRecords(records), nil
}

// ListUserChats 返回某个用户最近的聊天记录。
func (s *adminService) ListUserChats(userID uint) ([]ChatRecordResponse, error) {
	if _, err := s.userRepo.FindByID(userID); err != nil {
		return nil, ErrUserNotFound
	}
	records, err := s.historyRepo.FindByUserID(userID, LatestChatsLimit)
	if err != nil {
		return nil, err
	}
	return toChatRecords(records), nil
}

func toChatRecords(records []model.ChatHistory) []ChatRecordResponse {
	out := make([]ChatRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ChatRecordResponse{
			ID:          r.ID,
			UserID:      r.UserID,
			UserMessage: r.UserMessage,
			BotResponse: r.BotResponse,
			ImageObject: r.ImageObject,
			CreatedAt:   model.LocalTime(r.CreatedAt),
		})
	}
	return out
}

// SearchChats 在 Elasticsearch 中检索聊天记录。
func (s *adminService) SearchChats(ctx context.Context, query string, size int) ([]model.ChatSearchResultDTO, error) {
	if s.searchService == nil {
		return nil, ErrSearchUnavailable
	}
	return s.searchService.SearchExchanges(ctx, query, size)
}

// LeafImageURL 为归档的叶片图片生成预签名下载链接。
func (s *adminService) LeafImageURL(ctx context.Context, object string) (string, error) {
	if s.images == nil {
		return "", ErrImageStorageDisabled
	}
	object = strings.TrimPrefix(object, "/")
	if object == "" || !strings.HasPrefix(object, "leaves/") || strings.Contains(object, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidImageObject, object)
	}
	return s.images.PresignedURL(ctx, object, leafImageURLExpiry)
}

// GetAllConversations retrieves recent conversations for all or a specific user, with optional date filtering.
func (s *adminService) GetAllConversations(ctx context.Context, userID *uint, startTime, endTime *time.Time) ([]map[string]interface{}, error) {
	if userID != nil {
		user, err := s.userRepo.FindByID(*userID)
		if err != nil {
			return nil, ErrUserNotFound
		}
		return s.getConversationsForUser(ctx, user, startTime, endTime)
	}

	mappings, err := s.conversationRepo.GetAllUserConversationMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user conversation mappings from redis: %w", err)
	}

	allConversations := make([]map[string]interface{}, 0)
	for uid := range mappings {
		user, err := s.userRepo.FindByID(uid)
		if err != nil {
			continue
		}
		userConversations, err := s.getConversationsForUser(ctx, user, startTime, endTime)
		if err != nil {
			continue
		}
		allConversations = append(allConversations, userConversations...)
	}
	return allConversations, nil
}

func (s *adminService) getConversationsForUser(ctx context.Context, user *model.User, startTime, endTime *time.Time) ([]map[string]interface{}, error) {
	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation id: %w", err)
	}

	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	userConversations := make([]map[string]interface{}, 0, len(history))
	for _, msg := range history {
		if startTime != nil && msg.Timestamp.Before(*startTime) {
			continue
		}
		if endTime != nil && msg.Timestamp.After(*endTime) {
			continue
		}
		userConversations = append(userConversations, map[string]interface{}{
			"userId":    user.ID,
			"email":     user.Email,
			"role":      msg.Role,
			"content":   msg.Content,
			"timestamp": msg.Timestamp.Format("2006-01-02T15:04:05"),
		})
	}
	return userConversations, nil
}
