package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/mention"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 20

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     workspacedomain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     workspacedomain.Repository
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func New(p Params) workspacedomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("workspace.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) CreateWorkspace(ctx context.Context, creatorID snowflake.ID, req workspacedomain.CreateWorkspaceRequest) (*workspacedomain.Workspace, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, workspacedomain.ErrInvalidName
	}
	if creatorID == 0 {
		return nil, workspacedomain.ErrInvalidUser
	}
	plan := strings.TrimSpace(req.Plan)
	if plan == "" {
		plan = "free"
	}

	var ws *workspacedomain.Workspace
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate, err := s.uniqueSlug(ctx, tx, name)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		ws = &workspacedomain.Workspace{
			ID:        s.genID.Generate(),
			Name:      name,
			Slug:      candidate,
			Plan:      plan,
			CreatedBy: creatorID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.InsertWorkspace(ctx, tx, ws); err != nil {
			return err
		}
		return s.repo.InsertMember(ctx, tx, &workspacedomain.Member{
			ID:          s.genID.Generate(),
			WorkspaceID: ws.ID,
			UserID:      creatorID,
			Role:        string(workspacedomain.RoleOwner),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, ws.ID, "workspace.create", "workspace", ws.ID, map[string]any{"slug": ws.Slug})
	return ws, nil
}

func (s *Service) GetWorkspace(ctx context.Context, id snowflake.ID) (*workspacedomain.Workspace, error) {
	ws, err := s.repo.FindWorkspace(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, workspacedomain.ErrWorkspaceNotFound
	}
	return ws, nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, actorID, id snowflake.ID) error {
	if _, err := s.GetWorkspace(ctx, id); err != nil {
		return err
	}
	member, err := s.repo.FindMember(ctx, s.db, id, actorID)
	if err != nil {
		return err
	}
	if member == nil || member.Role != string(workspacedomain.RoleOwner) {
		return workspacedomain.ErrNotOwner
	}
	if err := s.repo.DeleteWorkspace(ctx, s.db, id); err != nil {
		return err
	}
	s.audit(ctx, id, "workspace.delete", "workspace", id, nil)
	return nil
}

func (s *Service) AddMember(ctx context.Context, workspaceID snowflake.ID, req workspacedomain.AddMemberRequest) (*workspacedomain.Member, error) {
	if req.UserID == 0 {
		return nil, workspacedomain.ErrInvalidUser
	}
	role := workspacedomain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = workspacedomain.RoleMember
	}
	if !role.Valid() || role == workspacedomain.RoleOwner {
		return nil, workspacedomain.ErrInvalidRole
	}
	if _, err := s.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}

	member := &workspacedomain.Member{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		UserID:      req.UserID,
		Role:        string(role),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertMember(ctx, s.db, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, workspacedomain.ErrMemberExists
		}
		return nil, err
	}

	s.audit(ctx, workspaceID, "member.add", "workspace_member", member.ID, map[string]any{
		"user_id": req.UserID.String(),
		"role":    member.Role,
	})
	return member, nil
}

func (s *Service) GetMember(ctx context.Context, workspaceID, userID snowflake.ID) (*workspacedomain.Member, error) {
	member, err := s.repo.FindMember(ctx, s.db, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, workspacedomain.ErrNotWorkspaceMember
	}
	return member, nil
}

func (s *Service) ListMembers(ctx context.Context, workspaceID snowflake.ID) ([]mention.Member, error) {
	return s.repo.ListDirectory(ctx, s.db, workspaceID)
}

func (s *Service) CreateDepartment(ctx context.Context, workspaceID snowflake.ID, req workspacedomain.CreateDepartmentRequest) (*workspacedomain.Department, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, workspacedomain.ErrInvalidName
	}
	if _, err := s.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}

	dept := &workspacedomain.Department{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertDepartment(ctx, s.db, dept); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, workspacedomain.ErrDepartmentExists
		}
		return nil, err
	}

	s.audit(ctx, workspaceID, "department.create", "department", dept.ID, map[string]any{"name": dept.Name})
	return dept, nil
}

func (s *Service) CreateChannel(ctx context.Context, workspaceID snowflake.ID, creatorID *snowflake.ID, req workspacedomain.CreateChannelRequest) (*workspacedomain.Channel, error) {
	name := normalizeChannelName(req.Name)
	if name == "" {
		return nil, workspacedomain.ErrInvalidName
	}
	if _, err := s.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	if req.DepartmentID != nil {
		dept, err := s.repo.FindDepartment(ctx, s.db, *req.DepartmentID)
		if err != nil {
			return nil, err
		}
		if dept == nil || dept.WorkspaceID != workspaceID {
			return nil, workspacedomain.ErrDepartmentNotFound
		}
	}

	now := s.clock.Now()
	channel := &workspacedomain.Channel{
		ID:           s.genID.Generate(),
		WorkspaceID:  workspaceID,
		DepartmentID: req.DepartmentID,
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		IsPrivate:    req.IsPrivate,
		CreatedBy:    creatorID,
		CreatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertChannel(ctx, tx, channel); err != nil {
			return err
		}
		if creatorID == nil || *creatorID == 0 {
			return nil
		}
		return s.repo.InsertChannelMember(ctx, tx, &workspacedomain.ChannelMember{
			ID:        s.genID.Generate(),
			ChannelID: channel.ID,
			UserID:    *creatorID,
			CreatedAt: now,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, workspacedomain.ErrChannelExists
		}
		return nil, err
	}

	s.audit(ctx, workspaceID, "channel.create", "channel", channel.ID, map[string]any{
		"name":       channel.Name,
		"is_private": channel.IsPrivate,
	})
	return channel, nil
}

func (s *Service) GetChannel(ctx context.Context, id snowflake.ID) (*workspacedomain.Channel, error) {
	channel, err := s.repo.FindChannel(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, workspacedomain.ErrChannelNotFound
	}
	return channel, nil
}

func (s *Service) AddChannelMember(ctx context.Context, channelID, userID snowflake.ID) (*workspacedomain.ChannelMember, error) {
	if userID == 0 {
		return nil, workspacedomain.ErrInvalidUser
	}
	channel, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetMember(ctx, channel.WorkspaceID, userID); err != nil {
		return nil, err
	}

	member := &workspacedomain.ChannelMember{
		ID:        s.genID.Generate(),
		ChannelID: channelID,
		UserID:    userID,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertChannelMember(ctx, s.db, member); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, workspacedomain.ErrChannelMemberExists
		}
		return nil, err
	}

	s.audit(ctx, channel.WorkspaceID, "channel_member.add", "channel", channelID, map[string]any{
		"user_id": userID.String(),
	})
	return member, nil
}

func (s *Service) IsChannelMember(ctx context.Context, channelID, userID snowflake.ID) (bool, error) {
	return s.repo.IsChannelMember(ctx, s.db, channelID, userID)
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "workspace"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.repo.SlugExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, s.genID.Generate().Base36()), nil
}

func (s *Service) audit(ctx context.Context, workspaceID snowflake.ID, action, resource string, resourceID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	id := resourceID.String()
	if err := s.auditSvc.Append(ctx, auditdomain.Entry{
		WorkspaceID: &workspaceID,
		Action:      action,
		Resource:    resource,
		ResourceID:  &id,
		Metadata:    metadata,
	}); err != nil {
		s.log.Warn("audit append failed", zap.String("action", action), zap.Error(err))
	}
}

func normalizeChannelName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}
