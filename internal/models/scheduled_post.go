package models

import "time"

// ScheduledPostStatus is the lifecycle state of a scheduled post.
type ScheduledPostStatus string

const (
	ScheduledPostPending   ScheduledPostStatus = "pending"
	ScheduledPostPosted    ScheduledPostStatus = "posted"
	ScheduledPostCancelled ScheduledPostStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s ScheduledPostStatus) Valid() bool {
	switch s {
	case ScheduledPostPending, ScheduledPostPosted, ScheduledPostCancelled:
		return true
	}
	return false
}

// ScheduledPost is a post waiting to be published at ScheduledAt. Posted and
// cancelled are terminal; rows are never deleted.
type ScheduledPost struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	UserID          uint                `gorm:"not null;index" json:"user_id"`
	Content         string              `gorm:"type:text;not null" json:"content"`
	MediaURL        string              `json:"media_url"`
	CommentsEnabled bool                `gorm:"not null" json:"comments_enabled"`
	ScheduledAt     time.Time           `gorm:"not null;index:idx_scheduled_posts_due,priority:2" json:"scheduled_at"`
	Status          ScheduledPostStatus `gorm:"type:varchar(16);not null;index:idx_scheduled_posts_due,priority:1" json:"status"`
	PublishedPostID *uint               `gorm:"index" json:"published_post_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IsPending reports whether the record can still be edited, cancelled or published.
func (p *ScheduledPost) IsPending() bool {
	return p.Status == ScheduledPostPending
}

// LivePost builds the live post that promotion of p inserts.
func (p *ScheduledPost) LivePost() *Post {
	return &Post{
		UserID:          p.UserID,
		Content:         p.Content,
		MediaURL:        p.MediaURL,
		CommentsEnabled: p.CommentsEnabled,
	}
}
