package models

import "time"

// Comment belongs to a post. Comments are removed with their post's
// deactivation.
type Comment struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        *uint     `gorm:"index" json:"user_id"`
	User          *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
	PostID        uint      `gorm:"not null;index" json:"post_id"`
	Content       string    `gorm:"size:500;not null" json:"content"`
	LikesQuantity int64     `gorm:"not null;default:0" json:"likes_quantity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID wrote the comment.
func (c *Comment) OwnedBy(userID uint) bool {
	return c.UserID != nil && *c.UserID == userID
}
