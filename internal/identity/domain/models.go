package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is the collaborator identity that authors messages and owns memberships.
type User struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Handle      string       `gorm:"size:255;not null;uniqueIndex:ux_users_handle" json:"handle"`
	DisplayName string       `gorm:"column:display_name;type:text;not null" json:"displayName"`
	Email       string       `gorm:"type:text;not null" json:"email"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
}

func (User) TableName() string { return "users" }

type Session struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash string       `gorm:"column:token_hash;size:255;not null;uniqueIndex:ux_sessions_token_hash"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null"`
	RevokedAt *time.Time   `gorm:"column:revoked_at"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }
