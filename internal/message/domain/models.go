package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DefaultThreadKey marks the channel's implicit thread.
const DefaultThreadKey = "general"

const (
	TypeText        = "text"
	TypeFile        = "file"
	TypeSystem      = "system"
	TypeIntegration = "integration"
)

// Thread groups messages inside a channel. RootMessageID is set when a
// message started the thread.
type Thread struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	ChannelID     snowflake.ID  `gorm:"column:channel_id;not null;uniqueIndex:ux_threads_well_known,priority:1" json:"channelId"`
	Title         string        `gorm:"type:text;not null" json:"title"`
	WellKnown     *string       `gorm:"column:well_known;size:255;uniqueIndex:ux_threads_well_known,priority:2" json:"wellKnown,omitempty"`
	RootMessageID *snowflake.ID `gorm:"column:root_message_id;uniqueIndex" json:"rootMessageId,omitempty"`
	CreatedBy     *snowflake.ID `gorm:"column:created_by" json:"createdBy,omitempty"`
	CreatedAt     time.Time     `gorm:"not null" json:"createdAt"`
}

func (Thread) TableName() string { return "threads" }

// IsDefault reports whether t is the channel's implicit thread.
func (t *Thread) IsDefault() bool {
	return t.WellKnown != nil && *t.WellKnown == DefaultThreadKey
}

type Message struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID      `gorm:"column:workspace_id;not null" json:"workspaceId"`
	ChannelID   snowflake.ID      `gorm:"column:channel_id;not null;index" json:"channelId"`
	ThreadID    snowflake.ID      `gorm:"column:thread_id;not null;index" json:"threadId"`
	AuthorID    *snowflake.ID     `gorm:"column:author_id" json:"authorId"`
	Content     string            `gorm:"type:text;not null" json:"content"`
	MessageType string            `gorm:"column:message_type;size:255;not null;default:'text'" json:"messageType"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	ReplyToID   *snowflake.ID     `gorm:"column:reply_to_id;index" json:"replyToId,omitempty"`
	Depth       int               `gorm:"not null;default:0" json:"depth"`
	Source      string            `gorm:"type:text;not null" json:"source"`
	IsEdited    bool              `gorm:"column:is_edited;not null;default:false" json:"isEdited"`
	EditedAt    *time.Time        `gorm:"column:edited_at" json:"editedAt,omitempty"`
	IsDeleted   bool              `gorm:"column:is_deleted;not null;default:false" json:"isDeleted"`
	DeletedAt   *time.Time        `gorm:"column:deleted_at" json:"deletedAt,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updatedAt"`
}

func (Message) TableName() string { return "messages" }

type Attachment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	MessageID snowflake.ID `gorm:"column:message_id;not null;index" json:"messageId"`
	FileName  string       `gorm:"column:file_name;type:text;not null" json:"fileName"`
	URL       string       `gorm:"column:url;type:text;not null" json:"url"`
	MimeType  string       `gorm:"column:mime_type;type:text" json:"mimeType,omitempty"`
	SizeBytes int64        `gorm:"column:size_bytes;not null;default:0" json:"sizeBytes"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (Attachment) TableName() string { return "message_attachments" }

type Mention struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	MessageID snowflake.ID `gorm:"column:message_id;not null;uniqueIndex:ux_message_mentions,priority:1" json:"messageId"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_message_mentions,priority:2" json:"userId"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (Mention) TableName() string { return "message_mentions" }

type Reaction struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	MessageID snowflake.ID `gorm:"column:message_id;not null;uniqueIndex:ux_message_reactions,priority:1" json:"messageId"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:ux_message_reactions,priority:2" json:"userId"`
	Emoji     string       `gorm:"size:255;not null;uniqueIndex:ux_message_reactions,priority:3" json:"emoji"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
}

func (Reaction) TableName() string { return "message_reactions" }

// MessageView is the canonical representation returned to callers and
// published to subscribers.
type MessageView struct {
	Message
	Attachments []Attachment   `json:"attachments"`
	Mentions    []snowflake.ID `json:"mentions"`
}
