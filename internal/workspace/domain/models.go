package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	default:
		return false
	}
}

// Workspace is the tenant boundary.
type Workspace struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	Slug           string            `gorm:"size:255;not null;uniqueIndex:ux_workspaces_slug" json:"slug"`
	Plan           string            `gorm:"size:255;not null;default:'free'" json:"plan"`
	SecurityPolicy datatypes.JSONMap `gorm:"column:security_policy;type:json" json:"securityPolicy,omitempty"`
	CreatedBy      snowflake.ID      `gorm:"column:created_by;not null" json:"createdBy"`
	CreatedAt      time.Time         `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updatedAt"`
}

func (Workspace) TableName() string { return "workspaces" }

type Member struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"column:workspace_id;not null;uniqueIndex:ux_workspace_members,priority:1" json:"workspaceId"`
	UserID      snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_workspace_members,priority:2" json:"userId"`
	Role        string       `gorm:"type:text;not null" json:"role"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
}

func (Member) TableName() string { return "workspace_members" }

type Department struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"column:workspace_id;not null;uniqueIndex:ux_departments_name,priority:1" json:"workspaceId"`
	Name        string       `gorm:"size:255;not null;uniqueIndex:ux_departments_name,priority:2" json:"name"`
	Description string       `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"createdAt"`
}

func (Department) TableName() string { return "departments" }

type Channel struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	WorkspaceID  snowflake.ID  `gorm:"column:workspace_id;not null;uniqueIndex:ux_channels_name,priority:1" json:"workspaceId"`
	DepartmentID *snowflake.ID `gorm:"column:department_id" json:"departmentId,omitempty"`
	Name         string        `gorm:"size:255;not null;uniqueIndex:ux_channels_name,priority:2" json:"name"`
	Description  string        `gorm:"type:text" json:"description,omitempty"`
	IsPrivate    bool          `gorm:"column:is_private;not null;default:false" json:"isPrivate"`
	CreatedBy    *snowflake.ID `gorm:"column:created_by" json:"createdBy,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"createdAt"`
}

func (Channel) TableName() string { return "channels" }

type ChannelMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ChannelID snowflake.ID `gorm:"column:channel_id;not null;uniqueIndex:ux_channel_members,priority:1" json:"channelId"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_channel_members,priority:2" json:"userId"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (ChannelMember) TableName() string { return "channel_members" }
