package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindUserByHandle(ctx context.Context, db *gorm.DB, handle string) (*User, error)
	InsertSession(ctx context.Context, db *gorm.DB, session *Session) error
	FindSessionByHash(ctx context.Context, db *gorm.DB, hash string) (*Session, error)
}

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	CreateSession(ctx context.Context, userID snowflake.ID, ttl time.Duration) (string, error)
	ResolveSession(ctx context.Context, rawToken string) (*User, error)
}

type CreateUserRequest struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

var (
	ErrInvalidHandle  = errors.New("invalid_handle")
	ErrHandleTaken    = errors.New("handle_taken")
	ErrUserNotFound   = errors.New("user_not_found")
	ErrInvalidSession = errors.New("invalid_session")
)
