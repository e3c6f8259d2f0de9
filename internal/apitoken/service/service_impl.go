package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	secretBytes       = 32
	displayPrefixSize = 12
)

var knownScopes = map[string]struct{}{
	gatewaydomain.ScopeAll:              {},
	gatewaydomain.ScopeMessagesWrite:    {},
	gatewaydomain.ScopeMessagesRead:     {},
	gatewaydomain.ScopeChannelsWrite:    {},
	gatewaydomain.ScopeDepartmentsWrite: {},
	gatewaydomain.ScopeMembersWrite:     {},
	gatewaydomain.ScopeWebhooksIncoming: {},
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     apitokendomain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     apitokendomain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func New(p Params) apitokendomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("apitoken.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreateToken(ctx context.Context, actorID, workspaceID snowflake.ID, req apitokendomain.CreateTokenRequest) (*apitokendomain.TokenSecret, error) {
	if workspaceID == 0 {
		return nil, apitokendomain.ErrInvalidWorkspace
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apitokendomain.ErrInvalidName
	}
	permissions, err := normalizeScopes(req.Permissions)
	if err != nil {
		return nil, err
	}
	rateLimit := req.RateLimit
	if rateLimit < 0 {
		return nil, apitokendomain.ErrInvalidRateLimit
	}
	if rateLimit == 0 {
		rateLimit = apitokendomain.DefaultRateLimit
	}

	now := s.clock.Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apitokendomain.ErrInvalidExpiry
	}

	plain, err := generateSecret(apitokendomain.TokenPrefix)
	if err != nil {
		return nil, err
	}

	token := &apitokendomain.WorkspaceToken{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		Name:        name,
		TokenPrefix: plain[:displayPrefixSize],
		TokenHash:   apitokendomain.HashSecret(plain),
		Permissions: permissions,
		RateLimit:   rateLimit,
		ExpiresAt:   utcPtr(req.ExpiresAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actorID != 0 {
		token.CreatedBy = &actorID
	}
	if err := s.repo.InsertToken(ctx, s.db, token); err != nil {
		return nil, err
	}

	s.audit(ctx, &workspaceID, actorID, "token.create", "workspace_api_token", token.ID, map[string]any{
		"name":        token.Name,
		"permissions": []string(token.Permissions),
		"rate_limit":  token.RateLimit,
	})
	return &apitokendomain.TokenSecret{Token: token, Secret: plain}, nil
}

func (s *Service) ListTokens(ctx context.Context, workspaceID snowflake.ID) ([]apitokendomain.WorkspaceToken, error) {
	if workspaceID == 0 {
		return nil, apitokendomain.ErrInvalidWorkspace
	}
	return s.repo.ListTokens(ctx, s.db, workspaceID)
}

func (s *Service) RevokeToken(ctx context.Context, actorID, workspaceID, tokenID snowflake.ID) error {
	token, err := s.repo.FindToken(ctx, s.db, workspaceID, tokenID)
	if err != nil {
		return err
	}
	if token == nil {
		return apitokendomain.ErrTokenNotFound
	}
	if token.RevokedAt != nil {
		return nil
	}
	if err := s.repo.RevokeToken(ctx, s.db, token.ID, s.clock.Now()); err != nil {
		return err
	}
	s.audit(ctx, &workspaceID, actorID, "token.revoke", "workspace_api_token", token.ID, nil)
	return nil
}

func (s *Service) CreatePersonalKey(ctx context.Context, userID snowflake.ID, req apitokendomain.CreatePersonalKeyRequest) (*apitokendomain.PersonalKeySecret, error) {
	if userID == 0 {
		return nil, apitokendomain.ErrInvalidUser
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apitokendomain.ErrInvalidName
	}
	scopes, err := normalizeScopes(req.Scopes)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, apitokendomain.ErrInvalidExpiry
	}

	plain, err := generateSecret(apitokendomain.PersonalKeyPrefix)
	if err != nil {
		return nil, err
	}
	key := &apitokendomain.PersonalKey{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Name:      name,
		KeyHash:   apitokendomain.HashSecret(plain),
		Scopes:    scopes,
		IsActive:  true,
		ExpiresAt: utcPtr(req.ExpiresAt),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.InsertPersonalKey(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.audit(ctx, nil, userID, "api_key.create", "api_key", key.ID, map[string]any{
		"name":   key.Name,
		"scopes": []string(key.Scopes),
	})
	return &apitokendomain.PersonalKeySecret{Key: key, Secret: plain}, nil
}

func (s *Service) RevokePersonalKey(ctx context.Context, userID, keyID snowflake.ID) error {
	key, err := s.repo.FindPersonalKey(ctx, s.db, userID, keyID)
	if err != nil {
		return err
	}
	if key == nil {
		return apitokendomain.ErrKeyNotFound
	}
	if !key.IsActive {
		return nil
	}
	if err := s.repo.DeactivatePersonalKey(ctx, s.db, key.ID, s.clock.Now()); err != nil {
		return err
	}
	s.audit(ctx, nil, userID, "api_key.revoke", "api_key", key.ID, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, workspaceID *snowflake.ID, actorID snowflake.ID, action, resource string, resourceID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		WorkspaceID: workspaceID,
		Action:      action,
		Resource:    resource,
		Metadata:    metadata,
	}
	if actorID != 0 {
		actor := actorID.String()
		entry.ActorType = auditdomain.ActorTypeUser
		entry.ActorID = &actor
	}
	target := resourceID.String()
	entry.ResourceID = &target
	if err := s.auditSvc.Append(ctx, entry); err != nil {
		s.log.Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeScopes(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return []string{gatewaydomain.ScopeMessagesWrite}, nil
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, scope := range raw {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if _, ok := knownScopes[scope]; !ok {
			return nil, apitokendomain.ErrInvalidPermission
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out, nil
}

func generateSecret(prefix string) (string, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(secret), nil
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
