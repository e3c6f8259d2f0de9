package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability/metrics"
	"github.com/larrybwosi/workspace-sub003/internal/signature"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scopes granted to every incoming webhook credential.
var incomingWebhookScopes = []string{
	gatewaydomain.ScopeWebhooksIncoming,
	gatewaydomain.ScopeMessagesWrite,
	gatewaydomain.ScopeChannelsWrite,
	gatewaydomain.ScopeDepartmentsWrite,
	gatewaydomain.ScopeMembersWrite,
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Tokens   apitokendomain.Repository
	Webhooks webhookdomain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	tokens   apitokendomain.Repository
	webhooks webhookdomain.Repository
	clock    clock.Clock
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) gatewaydomain.Authenticator {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("gateway.service"),
		tokens:   p.Tokens,
		webhooks: p.Webhooks,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Authenticate(ctx context.Context, cred gatewaydomain.Credential) (*gatewaydomain.Principal, error) {
	switch c := cred.(type) {
	case gatewaydomain.WorkspaceToken:
		return s.authenticateToken(ctx, c)
	case gatewaydomain.PersonalKey:
		return s.authenticatePersonalKey(ctx, c)
	case gatewaydomain.WebhookSecret:
		return s.authenticateWebhook(ctx, c)
	case nil:
		return nil, gatewaydomain.ErrMissingCredential
	default:
		return nil, gatewaydomain.ErrInvalidCredential
	}
}

func (s *Service) Guard(ctx context.Context, cred gatewaydomain.Credential, scope string) (*gatewaydomain.Principal, error) {
	principal, err := s.Authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}
	kind := string(principal.Kind)
	if gatewaydomain.IsRateLimitExceeded(*principal) {
		s.metrics.RecordRateLimitDenied(ctx, kind, scope, "quota_exhausted")
		return principal, gatewaydomain.ErrRateLimitExceeded
	}
	s.metrics.RecordRateLimitAllowed(ctx, kind, scope)
	if scope != "" && !gatewaydomain.HasPermission(*principal, scope) {
		return principal, gatewaydomain.ErrInsufficientScope
	}
	return principal, nil
}

func (s *Service) authenticateToken(ctx context.Context, c gatewaydomain.WorkspaceToken) (*gatewaydomain.Principal, error) {
	raw := strings.TrimSpace(c.Token)
	if raw == "" {
		return nil, gatewaydomain.ErrMissingCredential
	}

	token, err := s.tokens.FindTokenByHash(ctx, s.db, apitokendomain.HashSecret(raw))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if token == nil || token.RevokedAt != nil || token.IsExpired(now) {
		return nil, gatewaydomain.ErrInvalidCredential
	}

	principal := &gatewaydomain.Principal{
		Kind:         gatewaydomain.KindWorkspaceToken,
		WorkspaceID:  token.WorkspaceID,
		UserID:       token.CreatedBy,
		CredentialID: token.ID,
		Permissions:  append([]string(nil), token.Permissions...),
		RateLimit:    token.RateLimit,
		UsageCount:   token.UsageCount,
		ExpiresAt:    token.ExpiresAt,
	}

	affected, err := s.tokens.ConsumeToken(ctx, s.db, token.ID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		// Either revoked between the read and the update or at the ceiling.
		current, err := s.tokens.FindTokenByHash(ctx, s.db, token.TokenHash)
		if err != nil {
			return nil, err
		}
		if current == nil || current.RevokedAt != nil {
			return nil, gatewaydomain.ErrInvalidCredential
		}
		principal.UsageCount = current.UsageCount
		if principal.UsageCount < principal.RateLimit {
			principal.UsageCount = principal.RateLimit
		}
		return principal, nil
	}

	if principal.RateLimit > 0 && principal.UsageCount >= principal.RateLimit {
		// A concurrent request consumed the slot we observed; the update
		// still succeeded so the pre-request count was stale.
		principal.UsageCount = principal.RateLimit - 1
	}
	principal.Consumed = true
	s.auditUse(ctx, principal)
	return principal, nil
}

func (s *Service) authenticatePersonalKey(ctx context.Context, c gatewaydomain.PersonalKey) (*gatewaydomain.Principal, error) {
	raw := strings.TrimSpace(c.Key)
	if raw == "" {
		return nil, gatewaydomain.ErrMissingCredential
	}

	key, err := s.tokens.FindPersonalKeyByHash(ctx, s.db, apitokendomain.HashSecret(raw))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if key == nil || !key.IsActive || key.IsExpired(now) {
		return nil, gatewaydomain.ErrInvalidCredential
	}
	if err := s.tokens.TouchPersonalKey(ctx, s.db, key.ID, now); err != nil {
		return nil, err
	}

	userID := key.UserID
	principal := &gatewaydomain.Principal{
		Kind:         gatewaydomain.KindPersonalKey,
		UserID:       &userID,
		CredentialID: key.ID,
		Permissions:  append([]string(nil), key.Scopes...),
		UsageCount:   key.UsageCount,
		Consumed:     true,
		ExpiresAt:    key.ExpiresAt,
	}
	s.auditUse(ctx, principal)
	return principal, nil
}

func (s *Service) authenticateWebhook(ctx context.Context, c gatewaydomain.WebhookSecret) (*gatewaydomain.Principal, error) {
	hook, err := s.lookupIncoming(ctx, c)
	if err != nil {
		return nil, err
	}
	if hook == nil || !hook.IsActive {
		return nil, gatewaydomain.ErrInvalidCredential
	}
	// Token addressed credentials are channel scoped; id addressed ones are
	// workspace level. Mixing the two is rejected.
	if c.Token != "" && hook.ChannelID == nil {
		return nil, gatewaydomain.ErrInvalidCredential
	}

	if err := signature.Verify(hook.Secret, c.Body, signature.ParseHeader(c.Signature)); err != nil {
		reason := "mismatch"
		if errors.Is(err, signature.ErrMissing) {
			reason = "missing"
		}
		s.metrics.RecordSignatureFailure(ctx, reason)
		s.log.Info("incoming webhook signature rejected",
			zap.String("incoming_webhook_id", hook.ID.String()),
			zap.String("reason", reason),
		)
		return nil, fmt.Errorf("%w: %w", gatewaydomain.ErrSignatureMismatch, err)
	}

	if err := s.webhooks.TouchIncoming(ctx, s.db, hook.ID, s.clock.Now()); err != nil {
		s.log.Warn("incoming webhook touch failed", zap.Error(err))
	}

	return &gatewaydomain.Principal{
		Kind:         gatewaydomain.KindIncomingWebhook,
		WorkspaceID:  hook.WorkspaceID,
		UserID:       hook.CreatedBy,
		CredentialID: hook.ID,
		ChannelID:    hook.ChannelID,
		Permissions:  append([]string(nil), incomingWebhookScopes...),
	}, nil
}

func (s *Service) lookupIncoming(ctx context.Context, c gatewaydomain.WebhookSecret) (*webhookdomain.IncomingWebhook, error) {
	if token := strings.TrimSpace(c.Token); token != "" {
		return s.webhooks.FindIncomingByToken(ctx, s.db, token)
	}
	rawID := strings.TrimSpace(c.WebhookID)
	if rawID == "" {
		return nil, gatewaydomain.ErrMissingCredential
	}
	id, err := snowflake.ParseString(rawID)
	if err != nil {
		return nil, gatewaydomain.ErrInvalidCredential
	}
	return s.webhooks.FindIncoming(ctx, s.db, id)
}

func (s *Service) auditUse(ctx context.Context, p *gatewaydomain.Principal) {
	if s.auditSvc == nil {
		return
	}
	actorID := p.ActorID()
	resourceID := p.CredentialID.String()
	resource := "workspace_api_token"
	var workspaceID *snowflake.ID
	if p.Kind == gatewaydomain.KindWorkspaceToken {
		id := p.WorkspaceID
		workspaceID = &id
	} else {
		resource = "api_key"
	}
	if err := s.auditSvc.Append(ctx, auditdomain.Entry{
		WorkspaceID: workspaceID,
		ActorType:   auditdomain.ActorType(p.ActorType()),
		ActorID:     &actorID,
		Action:      "token.use",
		Resource:    resource,
		ResourceID:  &resourceID,
		Metadata: map[string]any{
			"usage_count": p.UsageCount + 1,
		},
	}); err != nil {
		s.log.Warn("audit append failed", zap.String("action", "token.use"), zap.Error(err))
	}
}
