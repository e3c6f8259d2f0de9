package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	secretPrefix        = "whsec_"
	incomingTokenPrefix = "iwt_"
	incomingPath        = "/v1/webhooks/incoming"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     webhookdomain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     webhookdomain.Repository
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func New(p Params) webhookdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Register(ctx context.Context, actorID, workspaceID snowflake.ID, channelID *snowflake.ID, req webhookdomain.RegisterRequest) (*webhookdomain.RegisteredWebhook, error) {
	if workspaceID == 0 {
		return nil, webhookdomain.ErrInvalidWorkspace
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, webhookdomain.ErrInvalidName
	}
	target, err := validateURL(req.URL)
	if err != nil {
		return nil, err
	}
	events, err := normalizeEvents(req.Events)
	if err != nil {
		return nil, err
	}
	format := webhookdomain.Format(strings.ToLower(strings.TrimSpace(req.Format)))
	if format == "" {
		format = webhookdomain.FormatJSON
	}
	if !format.Valid() {
		return nil, webhookdomain.ErrInvalidFormat
	}

	secret, err := randomSecret(secretPrefix)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	hook := &webhookdomain.Webhook{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		Name:        name,
		URL:         target,
		Secret:      secret,
		Events:      events,
		Format:      string(format),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actorID != 0 {
		hook.CreatedBy = &actorID
	}
	if err := s.repo.InsertWebhook(ctx, s.db, hook); err != nil {
		return nil, err
	}

	s.audit(ctx, workspaceID, actorID, "webhook.create", "webhook", hook.ID, map[string]any{
		"name":   hook.Name,
		"url":    hook.URL,
		"events": events,
		"format": hook.Format,
	})
	return &webhookdomain.RegisteredWebhook{Webhook: hook, Secret: secret}, nil
}

func (s *Service) List(ctx context.Context, workspaceID snowflake.ID) ([]webhookdomain.Webhook, error) {
	if workspaceID == 0 {
		return nil, webhookdomain.ErrInvalidWorkspace
	}
	return s.repo.ListWebhooks(ctx, s.db, workspaceID)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*webhookdomain.Webhook, error) {
	hook, err := s.repo.FindWebhook(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if hook == nil {
		return nil, webhookdomain.ErrWebhookNotFound
	}
	return hook, nil
}

func (s *Service) Deactivate(ctx context.Context, actorID, webhookID snowflake.ID) error {
	hook, err := s.Get(ctx, webhookID)
	if err != nil {
		return err
	}
	if !hook.IsActive {
		return nil
	}
	if err := s.repo.DeactivateWebhook(ctx, s.db, hook.ID, s.clock.Now()); err != nil {
		return err
	}
	s.audit(ctx, hook.WorkspaceID, actorID, "webhook.delete", "webhook", hook.ID, nil)
	return nil
}

func (s *Service) ListDeliveries(ctx context.Context, webhookID snowflake.ID, page pagination.Pagination) (*webhookdomain.DeliveryPage, error) {
	if _, err := s.Get(ctx, webhookID); err != nil {
		return nil, err
	}

	var beforeID snowflake.ID
	if token := strings.TrimSpace(page.Cursor); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, webhookdomain.ErrInvalidCursor
		}
		beforeID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, webhookdomain.ErrInvalidCursor
		}
	}

	limit := page.Size()
	rows, err := s.repo.ListDeliveries(ctx, s.db, webhookID, beforeID, limit+1)
	if err != nil {
		return nil, err
	}
	items, info := pagination.BuildCursorPageInfo(rows, limit, func(d *webhookdomain.Delivery) string {
		return pagination.IDCursor(d.ID.String())
	})
	return &webhookdomain.DeliveryPage{PageInfo: info, Deliveries: items}, nil
}

// ProvisionIncoming issues an inbound credential. With a channel it is token
// addressed and bound to that channel; without one it is addressed by id.
func (s *Service) ProvisionIncoming(ctx context.Context, actorID, workspaceID snowflake.ID, channelID *snowflake.ID, req webhookdomain.ProvisionIncomingRequest) (*webhookdomain.IncomingCredential, error) {
	if workspaceID == 0 {
		return nil, webhookdomain.ErrInvalidWorkspace
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Incoming webhook"
	}
	token, err := randomSecret(incomingTokenPrefix)
	if err != nil {
		return nil, err
	}
	secret, err := randomSecret(secretPrefix)
	if err != nil {
		return nil, err
	}

	hook := &webhookdomain.IncomingWebhook{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		Name:        name,
		Token:       token,
		Secret:      secret,
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}
	if actorID != 0 {
		hook.CreatedBy = &actorID
	}
	if err := s.repo.InsertIncoming(ctx, s.db, hook); err != nil {
		return nil, err
	}

	s.audit(ctx, workspaceID, actorID, "incoming_webhook.create", "incoming_webhook", hook.ID, map[string]any{
		"name":          name,
		"channel_scope": channelID != nil,
	})

	credential := &webhookdomain.IncomingCredential{
		ID:          hook.ID,
		WorkspaceID: workspaceID,
		ChannelID:   channelID,
		Secret:      secret,
		URL:         incomingPath,
	}
	if channelID != nil {
		credential.Token = token
	}
	return credential, nil
}

func (s *Service) audit(ctx context.Context, workspaceID, actorID snowflake.ID, action, resource string, resourceID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		WorkspaceID: &workspaceID,
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

func validateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return "", webhookdomain.ErrInvalidURL
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return "", webhookdomain.ErrInvalidURL
	}
	return trimmed, nil
}

func normalizeEvents(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, webhookdomain.ErrInvalidEvents
	}
	known := make(map[string]struct{}, len(webhookdomain.KnownEvents)+1)
	known[webhookdomain.EventWildcard] = struct{}{}
	for _, event := range webhookdomain.KnownEvents {
		known[event] = struct{}{}
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, event := range raw {
		event = strings.ToLower(strings.TrimSpace(event))
		if _, ok := known[event]; !ok {
			return nil, webhookdomain.ErrInvalidEvents
		}
		if _, dup := seen[event]; dup {
			continue
		}
		seen[event] = struct{}{}
		out = append(out, event)
	}
	return out, nil
}

func randomSecret(prefix string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(buf), nil
}
