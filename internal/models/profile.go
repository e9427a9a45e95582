package models

import "time"

// Profile holds the public side of a user together with the cached
// cardinalities of the follow edge set.
type Profile struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User              *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Picture           string    `json:"picture,omitempty"`
	Biography         string    `gorm:"size:250" json:"biography,omitempty"`
	FollowersQuantity int64     `gorm:"not null;default:0" json:"followers_quantity"`
	FollowingQuantity int64     `gorm:"not null;default:0" json:"following_quantity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
