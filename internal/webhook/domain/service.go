package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"gorm.io/gorm"
)

// Events a subscription may name besides the wildcard.
var KnownEvents = []string{
	"message.created",
	"message.updated",
	"message.deleted",
	"thread.created",
	"reaction.added",
	"reaction.removed",
	"channel.created",
	"member.added",
}

type Repository interface {
	InsertWebhook(ctx context.Context, db *gorm.DB, hook *Webhook) error
	FindWebhook(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Webhook, error)
	ListWebhooks(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]Webhook, error)
	ListActiveWebhooks(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]Webhook, error)
	DeactivateWebhook(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	RecordOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, success bool, at time.Time) error

	InsertIncoming(ctx context.Context, db *gorm.DB, hook *IncomingWebhook) error
	FindIncoming(ctx context.Context, db *gorm.DB, id snowflake.ID) (*IncomingWebhook, error)
	FindIncomingByToken(ctx context.Context, db *gorm.DB, token string) (*IncomingWebhook, error)
	TouchIncoming(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	InsertDelivery(ctx context.Context, db *gorm.DB, delivery *Delivery) error
	ListDeliveries(ctx context.Context, db *gorm.DB, webhookID snowflake.ID, beforeID snowflake.ID, limit int) ([]*Delivery, error)
}

// Service manages subscriptions and inbound credentials.
type Service interface {
	Register(ctx context.Context, actorID, workspaceID snowflake.ID, channelID *snowflake.ID, req RegisterRequest) (*RegisteredWebhook, error)
	List(ctx context.Context, workspaceID snowflake.ID) ([]Webhook, error)
	Get(ctx context.Context, id snowflake.ID) (*Webhook, error)
	Deactivate(ctx context.Context, actorID, webhookID snowflake.ID) error
	ListDeliveries(ctx context.Context, webhookID snowflake.ID, page pagination.Pagination) (*DeliveryPage, error)
	ProvisionIncoming(ctx context.Context, actorID, workspaceID snowflake.ID, channelID *snowflake.ID, req ProvisionIncomingRequest) (*IncomingCredential, error)
}

// Dispatcher fans an event out to every matching subscription. It never
// returns an error; per subscriber outcomes are reported in the results.
type Dispatcher interface {
	Dispatch(ctx context.Context, workspaceID snowflake.ID, event string, data map[string]any) []DeliveryResult
}

type RegisterRequest struct {
	Name   string   `json:"name"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Format string   `json:"format"`
}

type RegisteredWebhook struct {
	Webhook *Webhook `json:"webhook"`
	Secret  string   `json:"secret"`
}

type ProvisionIncomingRequest struct {
	Name string `json:"name"`
}

// IncomingCredential is returned once. Token is empty for workspace level
// credentials, which are addressed by ID.
type IncomingCredential struct {
	ID          snowflake.ID  `json:"id"`
	WorkspaceID snowflake.ID  `json:"workspaceId"`
	ChannelID   *snowflake.ID `json:"channelId,omitempty"`
	Token       string        `json:"token,omitempty"`
	Secret      string        `json:"secret"`
	URL         string        `json:"url"`
}

type DeliveryPage struct {
	pagination.PageInfo
	Deliveries []*Delivery `json:"deliveries"`
}

type DeliveryResult struct {
	WebhookID  snowflake.ID
	DeliveryID string
	Attempts   int
	StatusCode int
	Success    bool
	Err        error
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidURL       = errors.New("invalid_url")
	ErrInvalidEvents    = errors.New("invalid_events")
	ErrInvalidFormat    = errors.New("invalid_format")
	ErrInvalidWorkspace = errors.New("invalid_workspace")
	ErrWebhookNotFound  = errors.New("webhook_not_found")
	ErrIncomingNotFound = errors.New("incoming_webhook_not_found")
	ErrInvalidCursor    = errors.New("invalid_cursor")

	// ErrDeliveryFailed marks a subscriber that exhausted its attempts.
	ErrDeliveryFailed = errors.New("delivery_failed")
)
