// Package inbound executes signed requests posted to the incoming webhook
// endpoint.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability/metrics"
	"github.com/larrybwosi/workspace-sub003/internal/ratelimit"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/besteffort"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionSendMessage      = "send_message"
	ActionCreateChannel    = "create_channel"
	ActionCreateDepartment = "create_department"
	ActionAddMember        = "add_member"
)

const eventIncoming = "webhook.incoming"

var (
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrUnknownAction     = errors.New("unknown_action")
	ErrChannelRequired   = errors.New("channel_required")
	ErrWorkspaceRequired = errors.New("workspace_required")
)

// RateLimitedError matches gatewaydomain.ErrRateLimitExceeded.
type RateLimitedError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", gatewaydomain.ErrRateLimitExceeded, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return gatewaydomain.ErrRateLimitExceeded
}

var actionScopes = map[string]string{
	ActionSendMessage:      gatewaydomain.ScopeMessagesWrite,
	ActionCreateChannel:    gatewaydomain.ScopeChannelsWrite,
	ActionCreateDepartment: gatewaydomain.ScopeDepartmentsWrite,
	ActionAddMember:        gatewaydomain.ScopeMembersWrite,
}

type Request struct {
	Credential gatewaydomain.Credential
	Body       []byte
}

// Result is returned for an executed action. Resource is the created object.
type Result struct {
	Action     string `json:"action"`
	DeliveryID string `json:"deliveryId"`
	Resource   any    `json:"result"`
}

type sendMessageData struct {
	ChannelID   *snowflake.ID                   `json:"channelId"`
	ThreadID    *snowflake.ID                   `json:"threadId"`
	Content     string                          `json:"content"`
	MessageType string                          `json:"messageType"`
	Metadata    map[string]any                  `json:"metadata"`
	Attachments []messagedomain.AttachmentInput `json:"attachments"`
}

type createChannelData struct {
	WorkspaceID  *snowflake.ID `json:"workspaceId"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	IsPrivate    bool          `json:"isPrivate"`
	DepartmentID *snowflake.ID `json:"departmentId"`
}

type createDepartmentData struct {
	WorkspaceID *snowflake.ID `json:"workspaceId"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
}

type addMemberData struct {
	WorkspaceID *snowflake.ID `json:"workspaceId"`
	UserID      snowflake.ID  `json:"userId"`
	Role        string        `json:"role"`
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       webhookdomain.Repository
	Clock      clock.Clock
	Gateway    gatewaydomain.Authenticator
	Messages   messagedomain.Service
	Workspaces workspacedomain.Service
	Gate       *access.Gate
	Validator  *Validator
	Authorizer *access.Authorizer                 `optional:"true"`
	Limiter    *ratelimit.IncomingWebhookLimiter `optional:"true"`
	Dispatcher webhookdomain.Dispatcher          `optional:"true"`
	AuditSvc   auditdomain.Service               `optional:"true"`
	Metrics    *metrics.Metrics                  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       webhookdomain.Repository
	clock      clock.Clock
	gateway    gatewaydomain.Authenticator
	messages   messagedomain.Service
	workspaces workspacedomain.Service
	gate       *access.Gate
	validator  *Validator
	authorizer *access.Authorizer
	limiter    *ratelimit.IncomingWebhookLimiter
	dispatcher webhookdomain.Dispatcher
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.inbound"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		gateway:    p.Gateway,
		messages:   p.Messages,
		workspaces: p.Workspaces,
		gate:       p.Gate,
		validator:  p.Validator,
		authorizer: p.Authorizer,
		limiter:    p.Limiter,
		dispatcher: p.Dispatcher,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

// attempt collects what is recorded once the request finishes.
type attempt struct {
	deliveryID  string
	principal   *gatewaydomain.Principal
	workspaceID snowflake.ID
	action      string
	resourceID  string
	startedAt   time.Time
}

// Handle authenticates the credential over the raw body, validates the
// envelope and runs the action. A delivery row and an audit entry are
// written whatever the outcome, as long as the workspace is known.
func (s *Service) Handle(ctx context.Context, req Request) (result *Result, err error) {
	a := &attempt{
		deliveryID: ulid.Make().String(),
		startedAt:  s.clock.Now(),
	}
	defer func() {
		s.finish(ctx, req, a, err)
	}()

	if req.Credential == nil {
		return nil, gatewaydomain.ErrMissingCredential
	}
	if limited := s.allow(ctx, req.Credential); limited != nil {
		return nil, limited
	}

	principal, err := s.gateway.Authenticate(ctx, req.Credential)
	if err != nil {
		return nil, err
	}
	a.principal = principal
	a.workspaceID = principal.WorkspaceID

	envelope, err := s.validator.Validate(req.Body)
	if err != nil {
		return nil, err
	}
	a.action = envelope.Action

	if principal.Kind == gatewaydomain.KindIncomingWebhook && !gatewaydomain.HasPermission(*principal, gatewaydomain.ScopeWebhooksIncoming) {
		return nil, gatewaydomain.ErrInsufficientScope
	}
	scope, ok := actionScopes[envelope.Action]
	if !ok {
		return nil, ErrUnknownAction
	}
	if !gatewaydomain.HasPermission(*principal, scope) {
		return nil, gatewaydomain.ErrInsufficientScope
	}

	resource, err := s.run(ctx, a, *principal, envelope)
	if err != nil {
		return nil, err
	}
	return &Result{Action: envelope.Action, DeliveryID: a.deliveryID, Resource: resource}, nil
}

func (s *Service) run(ctx context.Context, a *attempt, principal gatewaydomain.Principal, envelope *Envelope) (any, error) {
	switch envelope.Action {
	case ActionSendMessage:
		var data sendMessageData
		if err := decode(envelope.Data, &data); err != nil {
			return nil, err
		}
		return s.sendMessage(ctx, a, principal, data)
	case ActionCreateChannel:
		var data createChannelData
		if err := decode(envelope.Data, &data); err != nil {
			return nil, err
		}
		return s.createChannel(ctx, a, principal, data)
	case ActionCreateDepartment:
		var data createDepartmentData
		if err := decode(envelope.Data, &data); err != nil {
			return nil, err
		}
		return s.createDepartment(ctx, a, principal, data)
	case ActionAddMember:
		var data addMemberData
		if err := decode(envelope.Data, &data); err != nil {
			return nil, err
		}
		return s.addMember(ctx, a, principal, data)
	default:
		return nil, ErrUnknownAction
	}
}

func (s *Service) sendMessage(ctx context.Context, a *attempt, principal gatewaydomain.Principal, data sendMessageData) (*messagedomain.MessageView, error) {
	channelID := data.ChannelID
	if channelID == nil {
		channelID = principal.ChannelID
	}
	if channelID == nil {
		return nil, &PayloadError{Fields: []FieldError{{
			Field: "/data/channelId", Code: ErrChannelRequired.Error(), Message: "channelId is required for workspace level credentials",
		}}}
	}

	view, err := s.messages.Send(ctx, messagedomain.SendRequest{
		Principal:   principal,
		ChannelID:   *channelID,
		ThreadID:    data.ThreadID,
		Content:     data.Content,
		MessageType: data.MessageType,
		Metadata:    data.Metadata,
		Attachments: data.Attachments,
	})
	if err != nil {
		return nil, err
	}
	a.workspaceID = view.WorkspaceID
	a.resourceID = view.ID.String()
	return view, nil
}

func (s *Service) createChannel(ctx context.Context, a *attempt, principal gatewaydomain.Principal, data createChannelData) (*workspacedomain.Channel, error) {
	workspaceID, err := s.resolveWorkspace(ctx, a, principal, data.WorkspaceID, access.ObjectChannel, access.ActionCreate)
	if err != nil {
		return nil, err
	}
	channel, err := s.workspaces.CreateChannel(ctx, workspaceID, creatorOf(principal), workspacedomain.CreateChannelRequest{
		Name:         data.Name,
		Description:  data.Description,
		IsPrivate:    data.IsPrivate,
		DepartmentID: data.DepartmentID,
	})
	if err != nil {
		return nil, err
	}
	a.resourceID = channel.ID.String()
	s.dispatch(ctx, workspaceID, "channel.created", map[string]any{
		"channelId": channel.ID.String(),
		"name":      channel.Name,
		"isPrivate": channel.IsPrivate,
	})
	return channel, nil
}

func (s *Service) createDepartment(ctx context.Context, a *attempt, principal gatewaydomain.Principal, data createDepartmentData) (*workspacedomain.Department, error) {
	workspaceID, err := s.resolveWorkspace(ctx, a, principal, data.WorkspaceID, access.ObjectDepartment, access.ActionCreate)
	if err != nil {
		return nil, err
	}
	dept, err := s.workspaces.CreateDepartment(ctx, workspaceID, workspacedomain.CreateDepartmentRequest{
		Name:        data.Name,
		Description: data.Description,
	})
	if err != nil {
		return nil, err
	}
	a.resourceID = dept.ID.String()
	return dept, nil
}

func (s *Service) addMember(ctx context.Context, a *attempt, principal gatewaydomain.Principal, data addMemberData) (*workspacedomain.Member, error) {
	workspaceID, err := s.resolveWorkspace(ctx, a, principal, data.WorkspaceID, access.ObjectMember, access.ActionAdd)
	if err != nil {
		return nil, err
	}
	role := data.Role
	if role == "" {
		role = string(workspacedomain.RoleMember)
	}
	member, err := s.workspaces.AddMember(ctx, workspaceID, workspacedomain.AddMemberRequest{
		UserID: data.UserID,
		Role:   role,
	})
	if err != nil {
		return nil, err
	}
	a.resourceID = member.ID.String()
	s.dispatch(ctx, workspaceID, "member.added", map[string]any{
		"userId": member.UserID.String(),
		"role":   member.Role,
	})
	return member, nil
}

// resolveWorkspace pins management actions to a workspace. Webhook
// credentials carry their own; personal keys name one and are held to the
// user's role in it.
func (s *Service) resolveWorkspace(ctx context.Context, a *attempt, principal gatewaydomain.Principal, requested *snowflake.ID, object, action string) (snowflake.ID, error) {
	if !principal.ActsAsUser() {
		if requested != nil && *requested != principal.WorkspaceID {
			return 0, &access.DeniedError{Reason: access.ReasonWorkspaceMismatch}
		}
		return principal.WorkspaceID, nil
	}

	if requested == nil || *requested == 0 {
		return 0, &PayloadError{Fields: []FieldError{{
			Field: "/data/workspaceId", Code: ErrWorkspaceRequired.Error(), Message: "workspaceId is required for personal keys",
		}}}
	}
	workspaceID := *requested
	if err := s.gate.RequireWorkspace(ctx, principal, workspaceID); err != nil {
		return 0, err
	}
	a.workspaceID = workspaceID
	if s.authorizer == nil {
		return workspaceID, nil
	}
	if err := s.authorizer.Authorize(ctx, principal.AuthorID(), workspaceID, object, action); err != nil {
		return 0, err
	}
	return workspaceID, nil
}

func (s *Service) allow(ctx context.Context, cred gatewaydomain.Credential) error {
	if !s.limiter.Enabled() {
		return nil
	}
	key := limiterKey(cred)
	if key == "" {
		return nil
	}
	res := s.limiter.Allow(ctx, key)
	if res.Allowed {
		s.metrics.RecordRateLimitAllowed(ctx, string(cred.Kind()), "webhooks.incoming")
		return nil
	}
	s.metrics.RecordRateLimitDenied(ctx, string(cred.Kind()), "webhooks.incoming", "burst")
	return &RateLimitedError{Limit: res.Limit, RetryAfter: res.RetryAfter}
}

// limiterKey never contains a raw secret.
func limiterKey(cred gatewaydomain.Credential) string {
	switch c := cred.(type) {
	case gatewaydomain.WebhookSecret:
		if token := strings.TrimSpace(c.Token); token != "" {
			return "token:" + apitokendomain.HashSecret(token)
		}
		if id := strings.TrimSpace(c.WebhookID); id != "" {
			return "id:" + id
		}
	case gatewaydomain.PersonalKey:
		if key := strings.TrimSpace(c.Key); key != "" {
			return "key:" + apitokendomain.HashSecret(key)
		}
	}
	return ""
}

func (s *Service) dispatch(ctx context.Context, workspaceID snowflake.ID, event string, data map[string]any) {
	if s.dispatcher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	besteffort.Do(ctx, s.log, s.metrics, "webhook.dispatch", func(ctx context.Context) error {
		s.dispatcher.Dispatch(ctx, workspaceID, event, data)
		return nil
	})
}

func (s *Service) finish(ctx context.Context, req Request, a *attempt, err error) {
	ctx = context.WithoutCancel(ctx)
	status := webhookdomain.StatusSuccess
	if err != nil {
		status = webhookdomain.StatusFailed
	}
	action := a.action
	if action == "" {
		action = "unknown"
	}
	s.metrics.RecordInboundWebhook(ctx, action, status)

	if err != nil {
		s.log.Info("incoming webhook rejected",
			zap.String("delivery_id", a.deliveryID),
			zap.String("action", action),
			zap.Error(err),
		)
	}

	if a.workspaceID != 0 {
		s.recordDelivery(ctx, req, a, action, status, err)
	}
	s.audit(ctx, a, action, status, err)
}

func (s *Service) recordDelivery(ctx context.Context, req Request, a *attempt, action, status string, err error) {
	now := s.clock.Now()
	delivery := &webhookdomain.Delivery{
		ID:          s.genID.Generate(),
		DeliveryID:  a.deliveryID,
		WorkspaceID: a.workspaceID,
		Direction:   string(webhookdomain.DirectionInbound),
		Event:       action,
		Attempt:     1,
		Request: datatypes.JSONMap{
			"credential": string(req.Credential.Kind()),
			"bytes":      len(req.Body),
		},
		Status:     status,
		DurationMs: now.Sub(a.startedAt).Milliseconds(),
		CreatedAt:  now,
	}
	if a.principal != nil && a.principal.Kind == gatewaydomain.KindIncomingWebhook {
		id := a.principal.CredentialID
		delivery.IncomingWebhookID = &id
	}
	if a.resourceID != "" {
		delivery.Response = datatypes.JSONMap{"resourceId": a.resourceID}
	}
	if err != nil {
		msg := err.Error()
		delivery.Error = &msg
	}
	besteffort.Do(ctx, s.log, s.metrics, "webhook.inbound.record", func(ctx context.Context) error {
		return s.repo.InsertDelivery(ctx, s.db, delivery)
	})
}

func (s *Service) audit(ctx context.Context, a *attempt, action, status string, err error) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		ActorType: auditdomain.ActorTypeIncomingWebhook,
		Action:    eventIncoming,
		Resource:  "incoming_webhook",
		Metadata: map[string]any{
			"delivery_id": a.deliveryID,
			"action":      action,
			"status":      status,
		},
	}
	if a.workspaceID != 0 {
		id := a.workspaceID
		entry.WorkspaceID = &id
	}
	if a.principal != nil {
		entry.ActorType = auditdomain.ActorType(a.principal.ActorType())
		actorID := a.principal.ActorID()
		entry.ActorID = &actorID
		resourceID := a.principal.CredentialID.String()
		entry.ResourceID = &resourceID
	}
	if a.resourceID != "" {
		entry.Metadata["resource_id"] = a.resourceID
	}
	if err != nil {
		entry.Metadata["error"] = err.Error()
	}
	if auditErr := s.auditSvc.Append(ctx, entry); auditErr != nil {
		s.log.Warn("audit append failed", zap.String("action", eventIncoming), zap.Error(auditErr))
	}
}

func creatorOf(p gatewaydomain.Principal) *snowflake.ID {
	if id := p.AuthorID(); id != 0 {
		return &id
	}
	return nil
}

func decode(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &PayloadError{Fields: []FieldError{{Field: "/data", Code: "invalid", Message: err.Error()}}}
	}
	return nil
}
