// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// EsChatDocument 定义了存储在 Elasticsearch 中的聊天记录文档结构。
type EsChatDocument struct {
	HistoryID   uint      `json:"history_id"` // 对应 chat_history.id，同时作为文档 ID
	UserID      *uint     `json:"user_id,omitempty"`
	UserMessage string    `json:"user_message"`
	BotResponse string    `json:"bot_response"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChatSearchResultDTO 定义了返回给管理后台的聊天记录搜索结果。
type ChatSearchResultDTO struct {
	HistoryID   uint      `json:"historyId"`
	UserID      *uint     `json:"userId"`
	UserMessage string    `json:"userMessage"`
	BotResponse string    `json:"botResponse"`
	CreatedAt   time.Time `json:"createdAt"`
	Score       float64   `json:"score"`
}
