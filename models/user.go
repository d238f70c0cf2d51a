// models/user.go
package models

import (
	"time"
)

// User is an authenticated account. PublicID is the opaque identity
// carried in JWTs and used for quiz ownership checks; the engine never
// interprets its structure.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PublicID  string    `gorm:"uniqueIndex;not null;size:100" json:"public_id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Email     *string   `gorm:"uniqueIndex" json:"email,omitempty"`
	Password  string    `gorm:"not null" json:"-"`
	IsGuest   bool      `gorm:"default:false" json:"is_guest"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastLogin time.Time `json:"last_login"`
}
