package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() identitydomain.Repository {
	return &repo{}
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *identitydomain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, handle, display_name, email, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Handle, user.DisplayName, user.Email, user.CreatedAt,
	).Error
}

func (r *repo) FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*identitydomain.User, error) {
	var user identitydomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, handle, display_name, email, created_at FROM users WHERE id = ?`, id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindUserByHandle(ctx context.Context, db *gorm.DB, handle string) (*identitydomain.User, error) {
	var user identitydomain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, handle, display_name, email, created_at FROM users WHERE LOWER(handle) = LOWER(?)`, handle,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *identitydomain.Session) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, revoked_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.TokenHash, session.ExpiresAt, session.RevokedAt, session.CreatedAt,
	).Error
}

func (r *repo) FindSessionByHash(ctx context.Context, db *gorm.DB, hash string) (*identitydomain.Session, error) {
	var session identitydomain.Session
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, token_hash, expires_at, revoked_at, created_at FROM sessions WHERE token_hash = ?`, hash,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}
