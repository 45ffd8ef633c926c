package model

import (
	"strings"
	"time"
)

// User is a staff member. Leads reference users as managers and activities
// and task notes reference them as creators.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"type:varchar(150);uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"type:varchar(254)"`
	FirstName    string    `json:"first_name" gorm:"type:varchar(150)"`
	LastName     string    `json:"last_name" gorm:"type:varchar(150)"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	IsActive     bool      `json:"is_active" gorm:"not null"`
	IsStaff      bool      `json:"is_staff" gorm:"not null;default:false"`
	IsSuperuser  bool      `json:"is_superuser" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName falls back to the username when no name is set
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
