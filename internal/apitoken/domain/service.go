package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	TokenPrefix       = "wst_"
	PersonalKeyPrefix = "pk_"

	DefaultRateLimit = 1000
)

type Repository interface {
	InsertToken(ctx context.Context, db *gorm.DB, token *WorkspaceToken) error
	FindToken(ctx context.Context, db *gorm.DB, workspaceID, id snowflake.ID) (*WorkspaceToken, error)
	FindTokenByHash(ctx context.Context, db *gorm.DB, hash string) (*WorkspaceToken, error)
	ListTokens(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]WorkspaceToken, error)
	RevokeToken(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// ConsumeToken increments usage only while under the ceiling and returns
	// the number of rows changed.
	ConsumeToken(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error)

	InsertPersonalKey(ctx context.Context, db *gorm.DB, key *PersonalKey) error
	FindPersonalKey(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*PersonalKey, error)
	FindPersonalKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*PersonalKey, error)
	DeactivatePersonalKey(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	TouchPersonalKey(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type Service interface {
	CreateToken(ctx context.Context, actorID, workspaceID snowflake.ID, req CreateTokenRequest) (*TokenSecret, error)
	ListTokens(ctx context.Context, workspaceID snowflake.ID) ([]WorkspaceToken, error)
	RevokeToken(ctx context.Context, actorID, workspaceID, tokenID snowflake.ID) error

	CreatePersonalKey(ctx context.Context, userID snowflake.ID, req CreatePersonalKeyRequest) (*PersonalKeySecret, error)
	RevokePersonalKey(ctx context.Context, userID, keyID snowflake.ID) error
}

type CreateTokenRequest struct {
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions"`
	RateLimit   int64      `json:"rateLimit"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// TokenSecret carries the plaintext token. It is only returned at creation.
type TokenSecret struct {
	Token  *WorkspaceToken `json:"token"`
	Secret string          `json:"secret"`
}

type CreatePersonalKeyRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type PersonalKeySecret struct {
	Key    *PersonalKey `json:"key"`
	Secret string       `json:"secret"`
}

var (
	ErrInvalidWorkspace  = errors.New("invalid_workspace")
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidPermission = errors.New("invalid_permission")
	ErrInvalidRateLimit  = errors.New("invalid_rate_limit")
	ErrInvalidExpiry     = errors.New("invalid_expiry")
	ErrTokenNotFound     = errors.New("token_not_found")
	ErrKeyNotFound       = errors.New("api_key_not_found")
)
