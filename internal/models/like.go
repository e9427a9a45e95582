package models

import "time"

// PostLike is a user's like on a post.
// The combination of UserID and PostID must be unique.
type PostLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_post_likes_pair,priority:1" json:"user_id"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_post_likes_pair,priority:2;index" json:"post_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the edge table name.
func (PostLike) TableName() string { return "post_likes" }

// CommentLike is a user's like on a comment.
type CommentLike struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_comment_likes_pair,priority:1" json:"user_id"`
	CommentID uint      `gorm:"not null;uniqueIndex:idx_comment_likes_pair,priority:2;index" json:"comment_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName pins the edge table name.
func (CommentLike) TableName() string { return "comment_likes" }

// ContentKind selects which likeable entity an operation targets.
type ContentKind string

const (
	ContentPost    ContentKind = "post"
	ContentComment ContentKind = "comment"
)

// Valid reports whether k names a likeable entity.
func (k ContentKind) Valid() bool {
	return k == ContentPost || k == ContentComment
}
