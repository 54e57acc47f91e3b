// Package model 定义了与数据库表对应的 Go 结构体以及核心流程使用的值类型。
package model

import "time"

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 对应于数据库中的 'users' 表。
type User struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Email             string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password          string    `gorm:"type:varchar(255);not null" json:"-"`
	Name              string    `gorm:"type:varchar(100)" json:"name"`
	Role              string    `gorm:"type:varchar(20);not null;default:user" json:"role"`
	PrimaryCrop       string    `gorm:"type:varchar(100)" json:"primaryCrop"`
	Region            string    `gorm:"type:varchar(100)" json:"region"`
	PreferredLanguage string    `gorm:"type:varchar(10);not null;default:en" json:"preferredLanguage"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsAdmin 判断用户是否为管理员。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Profile 返回核心流程使用的只读用户画像。nil 用户视为匿名用户。
func (u *User) Profile() UserProfile {
	if u == nil {
		return AnonymousProfile()
	}
	id := u.ID
	return UserProfile{
		UserID:            &id,
		PrimaryCrop:       u.PrimaryCrop,
		Region:            u.Region,
		PreferredLanguage: u.PreferredLanguage,
	}
}
