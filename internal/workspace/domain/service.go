package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/mention"
	"gorm.io/gorm"
)

type Repository interface {
	InsertWorkspace(ctx context.Context, db *gorm.DB, ws *Workspace) error
	FindWorkspace(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Workspace, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	DeleteWorkspace(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	FindMember(ctx context.Context, db *gorm.DB, workspaceID, userID snowflake.ID) (*Member, error)
	ListDirectory(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]mention.Member, error)

	InsertDepartment(ctx context.Context, db *gorm.DB, dept *Department) error
	FindDepartment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Department, error)

	InsertChannel(ctx context.Context, db *gorm.DB, channel *Channel) error
	FindChannel(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Channel, error)
	InsertChannelMember(ctx context.Context, db *gorm.DB, member *ChannelMember) error
	IsChannelMember(ctx context.Context, db *gorm.DB, channelID, userID snowflake.ID) (bool, error)
}

// Service is the boundary CRUD the messaging pipeline depends on.
type Service interface {
	CreateWorkspace(ctx context.Context, creatorID snowflake.ID, req CreateWorkspaceRequest) (*Workspace, error)
	GetWorkspace(ctx context.Context, id snowflake.ID) (*Workspace, error)
	DeleteWorkspace(ctx context.Context, actorID, id snowflake.ID) error

	AddMember(ctx context.Context, workspaceID snowflake.ID, req AddMemberRequest) (*Member, error)
	GetMember(ctx context.Context, workspaceID, userID snowflake.ID) (*Member, error)
	// ListMembers satisfies mention.Directory.
	ListMembers(ctx context.Context, workspaceID snowflake.ID) ([]mention.Member, error)

	CreateDepartment(ctx context.Context, workspaceID snowflake.ID, req CreateDepartmentRequest) (*Department, error)

	CreateChannel(ctx context.Context, workspaceID snowflake.ID, creatorID *snowflake.ID, req CreateChannelRequest) (*Channel, error)
	GetChannel(ctx context.Context, id snowflake.ID) (*Channel, error)
	AddChannelMember(ctx context.Context, channelID, userID snowflake.ID) (*ChannelMember, error)
	IsChannelMember(ctx context.Context, channelID, userID snowflake.ID) (bool, error)
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

type AddMemberRequest struct {
	UserID snowflake.ID `json:"userId"`
	Role   string       `json:"role"`
}

type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateChannelRequest struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	IsPrivate    bool          `json:"isPrivate"`
	DepartmentID *snowflake.ID `json:"departmentId"`
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrWorkspaceNotFound   = errors.New("workspace_not_found")
	ErrChannelNotFound     = errors.New("channel_not_found")
	ErrDepartmentNotFound  = errors.New("department_not_found")
	ErrMemberExists        = errors.New("member_exists")
	ErrDepartmentExists    = errors.New("department_exists")
	ErrChannelExists       = errors.New("channel_exists")
	ErrChannelMemberExists = errors.New("channel_member_exists")
	ErrNotWorkspaceMember  = errors.New("not_workspace_member")
	ErrNotOwner            = errors.New("not_workspace_owner")
)
