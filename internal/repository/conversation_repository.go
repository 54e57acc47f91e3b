// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"farm-advisor-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	conversationTTL = 7 * 24 * time.Hour
	// MaxConversationMessages 是每个会话在 Redis 中保留的最近消息数。
	MaxConversationMessages = 20
)

// ConversationRepository 定义了最近对话记录的操作接口。
// 每个用户有一个当前会话，消息以 JSON 元素保存在 Redis list 中。
type ConversationRepository interface {
	GetOrCreateConversationID(ctx context.Context, userID uint) (string, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	AppendMessages(ctx context.Context, conversationID string, messages ...model.ChatMessage) error
	GetAllUserConversationMappings(ctx context.Context) (map[uint]string, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func userConversationKey(userID uint) string {
	return fmt.Sprintf("user:%d:current_conversation", userID)
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID + ":messages"
}

// GetOrCreateConversationID 获取用户当前会话 ID，不存在时创建，并刷新过期时间。
func (r *redisConversationRepository) GetOrCreateConversationID(ctx context.Context, userID uint) (string, error) {
	userKey := userConversationKey(userID)
	candidate := uuid.NewString()
	// SETNX 保证并发请求拿到同一个会话 ID
	if _, err := r.redisClient.SetNX(ctx, userKey, candidate, conversationTTL).Result(); err != nil {
		return "", fmt.Errorf("failed to set conversation id: %w", err)
	}
	convID, err := r.redisClient.Get(ctx, userKey).Result()
	if err != nil {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}
	r.redisClient.Expire(ctx, userKey, conversationTTL)
	return convID, nil
}

// GetConversationHistory 按时间顺序返回会话中的消息，无记录时返回空切片。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AppendMessages 在一个事务中追加消息、裁剪到最近 MaxConversationMessages 条并刷新过期时间。
func (r *redisConversationRepository) AppendMessages(ctx context.Context, conversationID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation message: %w", err)
		}
		values = append(values, data)
	}

	key := conversationKey(conversationID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -MaxConversationMessages, -1)
		pipe.Expire(ctx, key, conversationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation messages: %w", err)
	}
	return nil
}

// GetAllUserConversationMappings 扫描 user:*:current_conversation，返回 userID 到会话 ID 的映射。
func (r *redisConversationRepository) GetAllUserConversationMappings(ctx context.Context) (map[uint]string, error) {
	result := make(map[uint]string)
	iter := r.redisClient.Scan(ctx, 0, "user:*:current_conversation", 100).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		var uid uint
		if _, err := fmt.Sscanf(k, "user:%d:current_conversation", &uid); err != nil {
			continue
		}
		convID, err := r.redisClient.Get(ctx, k).Result()
		if err != nil {
			continue
		}
		result[uid] = convID
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan user conversation keys: %w", err)
	}
	return result, nil
}
