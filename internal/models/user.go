// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// User is an account. Email is the login identifier.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Email      string    `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Username   string    `gorm:"size:20;uniqueIndex;not null" json:"username"`
	Password   string    `gorm:"not null" json:"-"`
	FirstName  string    `gorm:"size:30;not null" json:"first_name"`
	LastName   string    `gorm:"size:30;not null" json:"last_name"`
	IsVerified bool      `gorm:"not null;default:false" json:"is_verified"`
	IsClient   bool      `gorm:"not null;default:true" json:"is_client"`
	IsActive   bool      `gorm:"not null;default:true" json:"-"`
	Profile    *Profile  `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
