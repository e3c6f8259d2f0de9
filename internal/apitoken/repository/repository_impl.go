package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apitokendomain.Repository {
	return &repo{}
}

const tokenColumns = `id, workspace_id, name, token_prefix, token_hash, permissions, rate_limit, usage_count,
	last_used_at, expires_at, created_by, revoked_at, created_at, updated_at`

const personalKeyColumns = `id, user_id, name, key_hash, scopes, is_active, usage_count, last_used_at, expires_at, created_at, updated_at`

func (r *repo) InsertToken(ctx context.Context, db *gorm.DB, token *apitokendomain.WorkspaceToken) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO workspace_api_tokens (`+tokenColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.WorkspaceID,
		token.Name,
		token.TokenPrefix,
		token.TokenHash,
		token.Permissions,
		token.RateLimit,
		token.UsageCount,
		token.LastUsedAt,
		token.ExpiresAt,
		token.CreatedBy,
		token.RevokedAt,
		token.CreatedAt,
		token.UpdatedAt,
	).Error
}

func (r *repo) FindToken(ctx context.Context, db *gorm.DB, workspaceID, id snowflake.ID) (*apitokendomain.WorkspaceToken, error) {
	var token apitokendomain.WorkspaceToken
	err := db.WithContext(ctx).Raw(
		`SELECT `+tokenColumns+` FROM workspace_api_tokens WHERE workspace_id = ? AND id = ?`,
		workspaceID, id,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == 0 {
		return nil, nil
	}
	return &token, nil
}

func (r *repo) FindTokenByHash(ctx context.Context, db *gorm.DB, hash string) (*apitokendomain.WorkspaceToken, error) {
	var token apitokendomain.WorkspaceToken
	err := db.WithContext(ctx).Raw(
		`SELECT `+tokenColumns+` FROM workspace_api_tokens WHERE token_hash = ?`,
		hash,
	).Scan(&token).Error
	if err != nil {
		return nil, err
	}
	if token.ID == 0 {
		return nil, nil
	}
	return &token, nil
}

func (r *repo) ListTokens(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]apitokendomain.WorkspaceToken, error) {
	var tokens []apitokendomain.WorkspaceToken
	err := db.WithContext(ctx).Raw(
		`SELECT `+tokenColumns+` FROM workspace_api_tokens WHERE workspace_id = ? ORDER BY id DESC`,
		workspaceID,
	).Scan(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *repo) RevokeToken(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE workspace_api_tokens SET revoked_at = ?, updated_at = ? WHERE id = ? AND revoked_at IS NULL`,
		at, at, id,
	).Error
}

func (r *repo) ConsumeToken(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE workspace_api_tokens
		 SET usage_count = usage_count + 1, last_used_at = ?, updated_at = ?
		 WHERE id = ? AND revoked_at IS NULL AND (rate_limit <= 0 OR usage_count < rate_limit)`,
		at, at, id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertPersonalKey(ctx context.Context, db *gorm.DB, key *apitokendomain.PersonalKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (`+personalKeyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.Scopes,
		key.IsActive,
		key.UsageCount,
		key.LastUsedAt,
		key.ExpiresAt,
		key.CreatedAt,
		key.UpdatedAt,
	).Error
}

func (r *repo) FindPersonalKey(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*apitokendomain.PersonalKey, error) {
	var key apitokendomain.PersonalKey
	err := db.WithContext(ctx).Raw(
		`SELECT `+personalKeyColumns+` FROM api_keys WHERE user_id = ? AND id = ?`,
		userID, id,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) FindPersonalKeyByHash(ctx context.Context, db *gorm.DB, hash string) (*apitokendomain.PersonalKey, error) {
	var key apitokendomain.PersonalKey
	err := db.WithContext(ctx).Raw(
		`SELECT `+personalKeyColumns+` FROM api_keys WHERE key_hash = ?`,
		hash,
	).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) DeactivatePersonalKey(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET is_active = ?, updated_at = ? WHERE id = ?`,
		false, at, id,
	).Error
}

func (r *repo) TouchPersonalKey(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ?, updated_at = ? WHERE id = ?`,
		at, at, id,
	).Error
}
