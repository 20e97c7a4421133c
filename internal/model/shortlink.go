package model

import (
	"time"
)

// ShortURL 短链接记录
// ShortCode 在所有未删除的记录中唯一，创建后不可变
type ShortURL struct {
	ID          uint64    `gorm:"primarykey" json:"id"`
	ShortCode   string    `gorm:"size:32;uniqueIndex;not null" json:"shortCode"`
	OriginalURL string    `gorm:"size:2048;not null" json:"url"`
	AccessCount uint64    `gorm:"not null;default:0" json:"accessCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (ShortURL) TableName() string {
	return "short_urls"
}

// PublicView 对外暴露的记录视图
type PublicView struct {
	ID          uint64    `json:"id" example:"1"`
	URL         string    `json:"url" example:"https://example.com/a"`
	ShortCode   string    `json:"shortCode" example:"aB3dE9"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	AccessCount uint64    `json:"accessCount" example:"0"`
}

// ToPublicView 转换为对外视图
func (s *ShortURL) ToPublicView() PublicView {
	return PublicView{
		ID:          s.ID,
		URL:         s.OriginalURL,
		ShortCode:   s.ShortCode,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		AccessCount: s.AccessCount,
	}
}

// Clone 返回一份独立副本
func (s *ShortURL) Clone() *ShortURL {
	c := *s
	return &c
}
