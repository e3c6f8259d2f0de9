package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const KindMention = "mention"

type Notification struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID  `gorm:"column:workspace_id;not null" json:"workspaceId"`
	UserID      snowflake.ID  `gorm:"column:user_id;not null;index" json:"userId"`
	Kind        string        `gorm:"type:text;not null" json:"kind"`
	MessageID   snowflake.ID  `gorm:"column:message_id;not null" json:"messageId"`
	ChannelID   snowflake.ID  `gorm:"column:channel_id;not null" json:"channelId"`
	ActorID     *snowflake.ID `gorm:"column:actor_id" json:"actorId,omitempty"`
	ReadAt      *time.Time    `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt   time.Time     `gorm:"not null" json:"createdAt"`
}

func (Notification) TableName() string { return "notifications" }

type MentionRequest struct {
	WorkspaceID snowflake.ID
	ChannelID   snowflake.ID
	MessageID   snowflake.ID
	// ActorID is the author; it never receives its own notification.
	ActorID *snowflake.ID
	UserIDs []snowflake.ID
}

type Service interface {
	NotifyMentions(ctx context.Context, req MentionRequest) ([]*Notification, error)
	ListUnread(ctx context.Context, userID snowflake.ID, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, userID, id snowflake.ID) error
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrNotificationNotFound = errors.New("notification_not_found")
)
