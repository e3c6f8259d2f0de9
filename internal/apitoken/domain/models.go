package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// WorkspaceToken is a bearer credential bound to one workspace. UsageCount is
// cumulative since issuance and never decreases.
type WorkspaceToken struct {
	ID          snowflake.ID                `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID                `gorm:"column:workspace_id;not null;index" json:"workspaceId"`
	Name        string                      `gorm:"type:text;not null" json:"name"`
	TokenPrefix string                      `gorm:"column:token_prefix;type:text;not null" json:"tokenPrefix"`
	TokenHash   string                      `gorm:"column:token_hash;size:255;not null;uniqueIndex" json:"-"`
	Permissions datatypes.JSONSlice[string] `gorm:"not null" json:"permissions"`
	RateLimit   int64                       `gorm:"column:rate_limit;not null" json:"rateLimit"`
	UsageCount  int64                       `gorm:"column:usage_count;not null;default:0" json:"usageCount"`
	LastUsedAt  *time.Time                  `gorm:"column:last_used_at" json:"lastUsedAt,omitempty"`
	ExpiresAt   *time.Time                  `gorm:"column:expires_at" json:"expiresAt,omitempty"`
	CreatedBy   *snowflake.ID               `gorm:"column:created_by" json:"createdBy,omitempty"`
	RevokedAt   *time.Time                  `gorm:"column:revoked_at" json:"revokedAt,omitempty"`
	CreatedAt   time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (WorkspaceToken) TableName() string { return "workspace_api_tokens" }

// IsExpired reports whether the token is past its expiry at now.
func (t *WorkspaceToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.Before(now)
}

// PersonalKey is the per-user API key sent in x-api-key. It acts as its user.
type PersonalKey struct {
	ID         snowflake.ID                `gorm:"primaryKey" json:"id"`
	UserID     snowflake.ID                `gorm:"column:user_id;not null;index" json:"userId"`
	Name       string                      `gorm:"type:text;not null" json:"name"`
	KeyHash    string                      `gorm:"column:key_hash;size:255;not null;uniqueIndex" json:"-"`
	Scopes     datatypes.JSONSlice[string] `gorm:"not null" json:"scopes"`
	IsActive   bool                        `gorm:"column:is_active;not null;default:true" json:"isActive"`
	UsageCount int64                       `gorm:"column:usage_count;not null;default:0" json:"usageCount"`
	LastUsedAt *time.Time                  `gorm:"column:last_used_at" json:"lastUsedAt,omitempty"`
	ExpiresAt  *time.Time                  `gorm:"column:expires_at" json:"expiresAt,omitempty"`
	CreatedAt  time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (PersonalKey) TableName() string { return "api_keys" }

func (k *PersonalKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}
