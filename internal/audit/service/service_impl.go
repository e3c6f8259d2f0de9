package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/audit/masking"
	auditcontext "github.com/larrybwosi/workspace-sub003/internal/auditcontext"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/workspacecontext"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
	clock clock.Clock
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Append(ctx context.Context, in auditdomain.Entry) error {
	action := strings.TrimSpace(in.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	resource := strings.TrimSpace(in.Resource)
	if resource == "" {
		resource = "unknown"
	}

	actorType, actorID := s.resolveActor(ctx, in.ActorType, in.ActorID)
	ipAddress := auditcontext.IPAddressFromContext(ctx)
	userAgent := auditcontext.UserAgentFromContext(ctx)

	payload := masking.MaskSensitive(in.Metadata)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	entry := auditdomain.AuditLog{
		ID:          s.genID.Generate(),
		WorkspaceID: s.resolveWorkspaceID(ctx, in.WorkspaceID),
		ActorType:   actorType,
		ActorID:     actorID,
		Action:      action,
		Resource:    resource,
		ResourceID:  normalizePointer(in.ResourceID),
		Metadata:    datatypes.JSONMap(payload),
		CreatedAt:   s.clock.Now(),
	}
	if ipAddress != "" {
		entry.IPAddress = &ipAddress
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if req.WorkspaceID == 0 {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidWorkspace
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var beforeID snowflake.ID
	if token := strings.TrimSpace(req.Cursor); token != "" {
		decoded, err := pagination.DecodeCursor(token)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidCursor
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil || id == 0 {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidCursor
		}
		beforeID = id
	}

	limit := req.Size()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		WorkspaceID: req.WorkspaceID,
		Action:      req.Action,
		Resource:    req.Resource,
		ResourceID:  req.ResourceID,
		ActorType:   req.ActorType,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
		BeforeID:    beforeID,
		Limit:       limit,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	page, info := pagination.BuildCursorPageInfo(items, limit, func(item *auditdomain.AuditLog) string {
		return pagination.IDCursor(item.ID.String())
	})

	logs := make([]auditdomain.AuditLog, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}
	return auditdomain.ListResponse{PageInfo: info, AuditLogs: logs}, nil
}

func (s *Service) resolveWorkspaceID(ctx context.Context, workspaceID *snowflake.ID) *snowflake.ID {
	if workspaceID != nil && *workspaceID != 0 {
		return workspaceID
	}
	resolved, ok := workspacecontext.WorkspaceIDFromContext(ctx)
	if !ok {
		return nil
	}
	return &resolved
}

func (s *Service) resolveActor(ctx context.Context, actorType auditdomain.ActorType, actorID *string) (string, *string) {
	resolvedType := strings.TrimSpace(string(actorType))
	if resolvedType == "" {
		if ctxType, ctxID := auditcontext.ActorFromContext(ctx); ctxType != "" {
			resolvedType = ctxType
			if (actorID == nil || strings.TrimSpace(*actorID) == "") && ctxID != "" {
				actorID = &ctxID
			}
		}
	}
	if resolvedType == "" {
		resolvedType = string(auditdomain.ActorTypeSystem)
	}
	return resolvedType, normalizePointer(actorID)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
