package repository

import (
	"farm-advisor-go/internal/model"

	"gorm.io/gorm"
)

// ChatHistoryRepository 负责 chat_history 表的读写。
type ChatHistoryRepository interface {
	Create(record *model.ChatHistory) error
	UpdateImageObject(id uint, object string) error
	FindLatest(limit int) ([]model.ChatHistory, error)
	FindByUserID(userID uint, limit int) ([]model.ChatHistory, error)
}

type chatHistoryRepository struct {
	db *gorm.DB
}

// NewChatHistoryRepository 创建一个新的 ChatHistoryRepository 实例。
func NewChatHistoryRepository(db *gorm.DB) ChatHistoryRepository {
	return &chatHistoryRepository{db: db}
}

func (r *chatHistoryRepository) Create(record *model.ChatHistory) error {
	return r.db.Create(record).Error
}

func (r *chatHistoryRepository) UpdateImageObject(id uint, object string) error {
	return r.db.Model(&model.ChatHistory{}).Where("id = ?", id).Update("image_object", object).Error
}

// FindLatest 返回最近的 limit 条记录，最新的在前。
func (r *chatHistoryRepository) FindLatest(limit int) ([]model.ChatHistory, error) {
	var records []model.ChatHistory
	err := r.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (r *chatHistoryRepository) FindByUserID(userID uint, limit int) ([]model.ChatHistory, error) {
	var records []model.ChatHistory
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Limit(limit).Find(&records).Error
	return records, err
}
