// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"farm-advisor-go/internal/model"
	"farm-advisor-go/internal/repository"
)

// ConversationService 定义了最近对话的业务逻辑接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	AddExchange(ctx context.Context, userID uint, exchange model.ChatExchange) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationHistory 获取用户当前会话的完整消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	conversationID, err := s.repo.GetOrCreateConversationID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetConversationHistory(ctx, conversationID)
}

// AddExchange 将一问一答追加到用户的对话历史中。
func (s *conversationService) AddExchange(ctx context.Context, userID uint, exchange model.ChatExchange) error {
	conversationID, err := s.repo.GetOrCreateConversationID(ctx, userID)
	if err != nil {
		return err
	}
	return s.repo.AppendMessages(ctx, conversationID,
		model.ChatMessage{Role: model.RoleUser, Content: exchange.UserMessage, Timestamp: exchange.CreatedAt},
		model.ChatMessage{Role: model.RoleAssistant, Content: exchange.BotResponse, Timestamp: exchange.CreatedAt},
	)
}
