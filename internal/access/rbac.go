package access

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectWebhook         = "webhook"
	ObjectIncomingWebhook = "incoming_webhook"
	ObjectAPIToken        = "api_token"
	ObjectChannel         = "channel"
	ObjectChannelMember   = "channel_member"
	ObjectDepartment      = "department"
	ObjectMember          = "member"
	ObjectAuditLog        = "audit_log"
	ObjectMessage         = "message"
)

const (
	ActionCreate    = "create"
	ActionView      = "view"
	ActionDelete    = "delete"
	ActionRevoke    = "revoke"
	ActionAdd       = "add"
	ActionDeleteAny = "delete_any"
)

var (
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidWorkspace = errors.New("invalid_workspace")
	ErrInvalidObject    = errors.New("invalid_object")
	ErrInvalidAction    = errors.New("invalid_action")
)

type AuthorizerParams struct {
	fx.In

	Log        *zap.Logger
	Enforcer   *casbin.SyncedEnforcer
	Workspaces workspacedomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
}

// Authorizer applies role based rules to privileged management actions.
type Authorizer struct {
	log        *zap.Logger
	enforcer   *casbin.SyncedEnforcer
	workspaces workspacedomain.Service
	auditSvc   auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewAuthorizer(p AuthorizerParams) *Authorizer {
	return &Authorizer{
		log:        p.Log.Named("access.rbac"),
		enforcer:   p.Enforcer,
		workspaces: p.Workspaces,
		auditSvc:   p.AuditSvc,
	}
}

// Authorize checks the user's workspace role against object/action. Denials
// are audited.
func (a *Authorizer) Authorize(ctx context.Context, userID, workspaceID snowflake.ID, object, action string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	if workspaceID == 0 {
		return ErrInvalidWorkspace
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	member, err := a.workspaces.GetMember(ctx, workspaceID, userID)
	if errors.Is(err, workspacedomain.ErrNotWorkspaceMember) {
		a.auditDenied(ctx, userID, workspaceID, object, action)
		return &DeniedError{Reason: ReasonNotWorkspaceMember}
	}
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("user:%s", userID)
	domain := fmt.Sprintf("workspace:%s", workspaceID)
	roleName := fmt.Sprintf("role:%s", strings.ToLower(member.Role))
	if err := a.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := a.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		a.auditDenied(ctx, userID, workspaceID, object, action)
		return &DeniedError{Reason: "insufficient_role"}
	}
	return nil
}

// ensureGrouping keeps exactly one role link per subject and domain so role
// changes in workspace_members take effect on the next check.
func (a *Authorizer) ensureGrouping(subject, roleName, domain string) error {
	existing, err := a.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := a.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := a.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = a.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (a *Authorizer) auditDenied(ctx context.Context, userID, workspaceID snowflake.ID, object, action string) {
	if a.auditSvc == nil {
		return
	}
	actorID := userID.String()
	resourceID := object + "." + action
	if err := a.auditSvc.Append(ctx, auditdomain.Entry{
		WorkspaceID: &workspaceID,
		ActorType:   auditdomain.ActorTypeUser,
		ActorID:     &actorID,
		Action:      "authorization.denied",
		Resource:    "authorization",
		ResourceID:  &resourceID,
		Metadata: map[string]any{
			"object": object,
			"action": action,
		},
	}); err != nil {
		a.log.Warn("audit append failed", zap.Error(err))
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	managed := [][2]string{
		{ObjectWebhook, ActionCreate},
		{ObjectWebhook, ActionView},
		{ObjectWebhook, ActionDelete},
		{ObjectIncomingWebhook, ActionCreate},
		{ObjectAPIToken, ActionCreate},
		{ObjectAPIToken, ActionView},
		{ObjectAPIToken, ActionRevoke},
		{ObjectDepartment, ActionCreate},
		{ObjectMember, ActionAdd},
		{ObjectAuditLog, ActionView},
		{ObjectMessage, ActionDeleteAny},
		{ObjectChannel, ActionCreate},
		{ObjectChannelMember, ActionAdd},
	}

	policies := make([][]string, 0, len(managed)*2+2)
	for _, rule := range managed {
		policies = append(policies,
			[]string{"role:owner", rule[0], rule[1]},
			[]string{"role:admin", rule[0], rule[1]},
		)
	}
	policies = append(policies,
		[]string{"role:member", ObjectChannel, ActionCreate},
		[]string{"role:member", ObjectChannelMember, ActionAdd},
	)

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
