package models

import "time"

// Follow is a directed edge: FollowerID follows FollowedID.
// The (follower_id, followed_id) pair is unique, so followers and following
// are both derived from this single table.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"not null;uniqueIndex:idx_follows_pair,priority:1;index" json:"follower_id"`
	FollowedID uint      `gorm:"not null;uniqueIndex:idx_follows_pair,priority:2;index" json:"followed_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName pins the edge table name.
func (Follow) TableName() string { return "follows" }
