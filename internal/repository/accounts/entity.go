// Package accounts stores the user directory consulted when routing messages
// and when recording presence.
package accounts

import (
	"time"

	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
)

// Account is a registered user
type Account struct {
	ID           string      `gorm:"primaryKey;size:36"`
	Email        string      `gorm:"uniqueIndex;size:255;not null"`
	Name         string      `gorm:"size:255"`
	PasswordHash string      `gorm:"not null"`
	Role         domain.Role `gorm:"size:16;default:user"`
	IsOnline     bool        `gorm:"not null;default:false"`
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity projects the account onto the fields carried in tokens
func (a *Account) Identity() domain.Identity {
	role := a.Role
	if role == "" {
		role = domain.RoleUser
	}
	return domain.Identity{ID: a.ID, Email: a.Email, Role: role}
}
