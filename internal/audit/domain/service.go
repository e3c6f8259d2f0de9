package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one action attempt. Empty actor fields fall back to the
// request context.
type Entry struct {
	WorkspaceID *snowflake.ID
	ActorType   ActorType
	ActorID     *string
	Action      string
	Resource    string
	ResourceID  *string
	Metadata    map[string]any
}

type ListRequest struct {
	pagination.Pagination
	WorkspaceID snowflake.ID
	Action      string     `form:"action"`
	Resource    string     `form:"resource"`
	ResourceID  string     `form:"resource_id"`
	ActorType   string     `form:"actor_type"`
	StartAt     *time.Time `form:"start_at" time_format:"2006-01-02T15:04:05Z07:00"`
	EndAt       *time.Time `form:"end_at" time_format:"2006-01-02T15:04:05Z07:00"`
}

type ListResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"auditLogs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

var (
	ErrInvalidWorkspace = errors.New("invalid_workspace")
	ErrInvalidCursor    = errors.New("invalid_cursor")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
