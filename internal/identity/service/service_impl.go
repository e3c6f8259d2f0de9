package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sessionTokenBytes = 32

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  identitydomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  identitydomain.Repository
	clock clock.Clock
}

func New(p Params) identitydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("identity.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) CreateUser(ctx context.Context, req identitydomain.CreateUserRequest) (*identitydomain.User, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(req.Handle), "@")
	if handle == "" || strings.ContainsAny(handle, " @\"") {
		return nil, identitydomain.ErrInvalidHandle
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = handle
	}

	user := &identitydomain.User{
		ID:          s.genID.Generate(),
		Handle:      handle,
		DisplayName: displayName,
		Email:       strings.TrimSpace(req.Email),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertUser(ctx, s.db, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, identitydomain.ErrHandleTaken
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*identitydomain.User, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identitydomain.ErrUserNotFound
	}
	return user, nil
}

// CreateSession issues an opaque session token. Only its hash is stored.
func (s *Service) CreateSession(ctx context.Context, userID snowflake.ID, ttl time.Duration) (string, error) {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := "sess_" + hex.EncodeToString(buf)

	now := s.clock.Now()
	session := &identitydomain.Session{
		ID:        s.genID.Generate(),
		UserID:    userID,
		TokenHash: identitydomain.HashSessionToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		return "", err
	}
	return raw, nil
}

func (s *Service) ResolveSession(ctx context.Context, rawToken string) (*identitydomain.User, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, identitydomain.ErrInvalidSession
	}

	session, err := s.repo.FindSessionByHash(ctx, s.db, identitydomain.HashSessionToken(rawToken))
	if err != nil {
		return nil, err
	}
	if session == nil || session.RevokedAt != nil || !session.ExpiresAt.After(s.clock.Now()) {
		return nil, identitydomain.ErrInvalidSession
	}

	user, err := s.repo.FindUserByID(ctx, s.db, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identitydomain.ErrInvalidSession
	}
	return user, nil
}
