package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatSlack Format = "slack"
)

func (f Format) Valid() bool {
	return f == FormatJSON || f == FormatSlack
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// EventWildcard subscribes to every event.
const EventWildcard = "*"

// Webhook is an outgoing subscription. A nil ChannelID receives events from
// every channel in the workspace.
type Webhook struct {
	ID              snowflake.ID                `gorm:"primaryKey" json:"id"`
	WorkspaceID     snowflake.ID                `gorm:"column:workspace_id;not null;index" json:"workspaceId"`
	ChannelID       *snowflake.ID               `gorm:"column:channel_id;index" json:"channelId,omitempty"`
	Name            string                      `gorm:"type:text;not null" json:"name"`
	URL             string                      `gorm:"column:url;type:text;not null" json:"url"`
	Secret          string                      `gorm:"type:text;not null" json:"-"`
	Events          datatypes.JSONSlice[string] `gorm:"not null" json:"events"`
	Format          string                      `gorm:"size:255;not null;default:'json'" json:"format"`
	IsActive        bool                        `gorm:"column:is_active;not null;default:true" json:"isActive"`
	DeliveryCount   int64                       `gorm:"column:delivery_count;not null;default:0" json:"deliveryCount"`
	SuccessCount    int64                       `gorm:"column:success_count;not null;default:0" json:"successCount"`
	LastTriggeredAt *time.Time                  `gorm:"column:last_triggered_at" json:"lastTriggeredAt,omitempty"`
	CreatedBy       *snowflake.ID               `gorm:"column:created_by" json:"createdBy,omitempty"`
	CreatedAt       time.Time                   `gorm:"not null" json:"createdAt"`
	UpdatedAt       time.Time                   `gorm:"not null" json:"updatedAt"`
}

func (Webhook) TableName() string { return "webhooks" }

// Subscribes reports whether the webhook wants event from channelID.
func (w *Webhook) Subscribes(event string, channelID *snowflake.ID) bool {
	if !w.IsActive {
		return false
	}
	if w.ChannelID != nil && (channelID == nil || *w.ChannelID != *channelID) {
		return false
	}
	for _, candidate := range w.Events {
		if candidate == EventWildcard || candidate == event {
			return true
		}
	}
	return false
}

// IncomingWebhook is an inbound credential. Channel scoped credentials are
// addressed by Token, workspace level ones by ID.
type IncomingWebhook struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID  `gorm:"column:workspace_id;not null;index" json:"workspaceId"`
	ChannelID   *snowflake.ID `gorm:"column:channel_id" json:"channelId,omitempty"`
	Name        string        `gorm:"type:text;not null" json:"name"`
	Token       string        `gorm:"size:255;not null;uniqueIndex" json:"-"`
	Secret      string        `gorm:"type:text;not null" json:"-"`
	IsActive    bool          `gorm:"column:is_active;not null;default:true" json:"isActive"`
	LastUsedAt  *time.Time    `gorm:"column:last_used_at" json:"lastUsedAt,omitempty"`
	CreatedBy   *snowflake.ID `gorm:"column:created_by" json:"createdBy,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"createdAt"`
}

func (IncomingWebhook) TableName() string { return "incoming_webhooks" }

// Delivery is one attempt in either direction. Rows are never updated.
type Delivery struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	DeliveryID        string            `gorm:"column:delivery_id;size:255;not null;index" json:"deliveryId"`
	WorkspaceID       snowflake.ID      `gorm:"column:workspace_id;not null;index" json:"workspaceId"`
	WebhookID         *snowflake.ID     `gorm:"column:webhook_id;index" json:"webhookId,omitempty"`
	IncomingWebhookID *snowflake.ID     `gorm:"column:incoming_webhook_id;index" json:"incomingWebhookId,omitempty"`
	Direction         string            `gorm:"type:text;not null" json:"direction"`
	Event             string            `gorm:"type:text;not null" json:"event"`
	Attempt           int               `gorm:"not null" json:"attempt"`
	Request           datatypes.JSONMap `gorm:"type:json" json:"request,omitempty"`
	Response          datatypes.JSONMap `gorm:"type:json" json:"response,omitempty"`
	Status            string            `gorm:"type:text;not null" json:"status"`
	Error             *string           `gorm:"type:text" json:"error,omitempty"`
	DurationMs        int64             `gorm:"column:duration_ms;not null" json:"durationMs"`
	CreatedAt         time.Time         `gorm:"not null" json:"createdAt"`
}

func (Delivery) TableName() string { return "webhook_deliveries" }
