package models

import (
	"time"
)

// Post is an accepted image upload with a caption. Posts are never removed,
// only deactivated.
type Post struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           *uint     `gorm:"index" json:"user_id"`
	User             *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
	Caption          string    `gorm:"size:400" json:"caption"`
	Image            string    `gorm:"not null" json:"image"`
	LikesQuantity    int64     `gorm:"not null;default:0" json:"likes_quantity"`
	CommentsQuantity int64     `gorm:"not null;default:0" json:"comments_quantity"`
	IsActive         bool      `gorm:"not null;default:true;index" json:"-"`
	CreatedAt        time.Time `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID authored the post.
func (p *Post) OwnedBy(userID uint) bool {
	return p.UserID != nil && *p.UserID == userID
}
