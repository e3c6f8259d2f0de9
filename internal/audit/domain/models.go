package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser            ActorType = "user"
	ActorTypeAPIToken        ActorType = "api_token"
	ActorTypeAPIKey          ActorType = "api_key"
	ActorTypeIncomingWebhook ActorType = "incoming_webhook"
	ActorTypeSystem          ActorType = "system"
)

// AuditLog is an append-only record of a privileged action.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	WorkspaceID *snowflake.ID     `gorm:"column:workspace_id;index" json:"workspaceId,omitempty"`
	ActorType   string            `gorm:"column:actor_type;type:text;not null" json:"actorType"`
	ActorID     *string           `gorm:"column:actor_id;type:text" json:"actorId,omitempty"`
	Action      string            `gorm:"size:255;not null;index" json:"action"`
	Resource    string            `gorm:"type:text;not null" json:"resource"`
	ResourceID  *string           `gorm:"column:resource_id;type:text" json:"resourceId,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	IPAddress   *string           `gorm:"column:ip_address;type:text" json:"ipAddress,omitempty"`
	UserAgent   *string           `gorm:"column:user_agent;type:text" json:"userAgent,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	WorkspaceID snowflake.ID
	Action      string
	Resource    string
	ResourceID  string
	ActorType   string
	StartAt     *time.Time
	EndAt       *time.Time
	BeforeID    snowflake.ID
	Limit       int
}
