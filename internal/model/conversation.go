// Package model 包含了应用的数据模型定义。
package model

import "time"

// ImageMessageLabel 是图片提问在聊天记录中的占位文本。
const ImageMessageLabel = "Image uploaded"

// RoleAssistant 是机器人回复消息的角色，提问消息使用 RoleUser。
const RoleAssistant = "assistant"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatExchange 是一次问答交互，由核心流程产生、由调用方持久化。
type ChatExchange struct {
	UserID      *uint     `json:"userId,omitempty"`
	UserMessage string    `json:"userMessage"`
	BotResponse string    `json:"botResponse"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChatHistory 对应于数据库中的 'chat_history' 表。
type ChatHistory struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      *uint     `gorm:"index" json:"userId"`
	UserMessage string    `gorm:"type:text;not null" json:"userMessage"`
	BotResponse string    `gorm:"type:text;not null" json:"botResponse"`
	ImageObject string    `gorm:"type:varchar(255)" json:"imageObject,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatHistory) TableName() string {
	return "chat_history"
}

// NewChatHistory 将一次交互转换为数据库记录。
func NewChatHistory(ex ChatExchange) *ChatHistory {
	return &ChatHistory{
		UserID:      ex.UserID,
		UserMessage: ex.UserMessage,
		BotResponse: ex.BotResponse,
		CreatedAt:   ex.CreatedAt,
	}
}
