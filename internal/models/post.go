package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxContentLength bounds the content of live and scheduled posts.
const MaxContentLength = 50000

// Post is a live, publicly visible post.
type Post struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	User            *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Content         string         `gorm:"type:text;not null" json:"content"`
	MediaURL        string         `json:"media_url"`
	CommentsEnabled bool           `gorm:"not null" json:"comments_enabled"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
