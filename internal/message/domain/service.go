package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	MaxContentLength = 10000
	MaxAttachments   = 10
	MaxEmojiLength   = 64
)

// Deletion modes reported in message.deleted events.
const (
	DeleteModeThreadRemoved = "thread_removed"
	DeleteModeTombstoned    = "tombstoned"
	DeleteModeDeleted       = "deleted"
)

// Realtime and webhook event names.
const (
	EventMessageCreated  = "message.created"
	EventMessageUpdated  = "message.updated"
	EventMessageDeleted  = "message.deleted"
	EventThreadCreated   = "thread.created"
	EventReactionAdded   = "reaction.added"
	EventReactionRemoved = "reaction.removed"
)

type ListFilter struct {
	ChannelID snowflake.ID
	ThreadID  *snowflake.ID
	BeforeID  snowflake.ID
	Limit     int
}

type Repository interface {
	FindDefaultThread(ctx context.Context, db *gorm.DB, channelID snowflake.ID) (*Thread, error)
	// InsertThreadIfAbsent reports false when a conflicting row already exists.
	InsertThreadIfAbsent(ctx context.Context, db *gorm.DB, thread *Thread) (bool, error)
	InsertThread(ctx context.Context, db *gorm.DB, thread *Thread) error
	FindThread(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Thread, error)
	FindThreadByRoot(ctx context.Context, db *gorm.DB, messageID snowflake.ID) (*Thread, error)
	DeleteThread(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertMessage(ctx context.Context, db *gorm.DB, msg *Message) error
	FindMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Message, error)
	UpdateContent(ctx context.Context, db *gorm.DB, id snowflake.ID, content string, at time.Time) error
	TombstoneMessage(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	DeleteMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	CountReplies(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	ListMessages(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Message, error)

	InsertAttachments(ctx context.Context, db *gorm.DB, attachments []Attachment) error
	ListAttachments(ctx context.Context, db *gorm.DB, messageIDs []snowflake.ID) ([]Attachment, error)
	DeleteAttachments(ctx context.Context, db *gorm.DB, messageID snowflake.ID) error

	InsertMentions(ctx context.Context, db *gorm.DB, mentions []Mention) error
	ListMentions(ctx context.Context, db *gorm.DB, messageIDs []snowflake.ID) ([]Mention, error)

	InsertReaction(ctx context.Context, db *gorm.DB, reaction *Reaction) error
	DeleteReaction(ctx context.Context, db *gorm.DB, messageID, userID snowflake.ID, emoji string) (int64, error)
}

// Service is the ingestion pipeline shared by every ingress path.
type Service interface {
	Send(ctx context.Context, req SendRequest) (*MessageView, error)
	Edit(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, content string) (*MessageView, error)
	Delete(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID) (*DeleteResult, error)
	List(ctx context.Context, principal gatewaydomain.Principal, req ListRequest) (*MessagePage, error)
	StartThread(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, title string) (*Thread, error)
	// GetThread resolves a thread the principal can read through its channel.
	GetThread(ctx context.Context, principal gatewaydomain.Principal, threadID snowflake.ID) (*Thread, error)
	AddReaction(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, emoji string) (*Reaction, error)
	RemoveReaction(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, emoji string) error
}

type AttachmentInput struct {
	FileName  string `json:"fileName"`
	URL       string `json:"url"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

type SendRequest struct {
	Principal   gatewaydomain.Principal
	ChannelID   snowflake.ID
	ThreadID    *snowflake.ID
	ReplyToID   *snowflake.ID
	Content     string
	MessageType string
	Metadata    map[string]any
	Attachments []AttachmentInput
}

type ListRequest struct {
	pagination.Pagination
	ChannelID snowflake.ID
	ThreadID  *snowflake.ID
}

type MessagePage struct {
	pagination.PageInfo
	Messages []*MessageView `json:"messages"`
}

type DeleteResult struct {
	MessageID     snowflake.ID `json:"messageId"`
	ChannelID     snowflake.ID `json:"channelId"`
	ThreadID      snowflake.ID `json:"threadId"`
	Mode          string       `json:"mode"`
	ThreadRemoved bool         `json:"threadRemoved"`
}

var (
	ErrInvalidChannel     = errors.New("invalid_channel")
	ErrInvalidContent     = errors.New("invalid_content")
	ErrContentTooLong     = errors.New("content_too_long")
	ErrInvalidMessageType = errors.New("invalid_message_type")
	ErrInvalidAttachment  = errors.New("invalid_attachment")
	ErrTooManyAttachments = errors.New("too_many_attachments")
	ErrInvalidEmoji       = errors.New("invalid_emoji")
	ErrInvalidCursor      = errors.New("invalid_cursor")
	ErrMessageNotFound    = errors.New("message_not_found")
	ErrThreadNotFound     = errors.New("thread_not_found")
	ErrParentNotFound     = errors.New("parent_message_not_found")
	ErrReactionNotFound   = errors.New("reaction_not_found")
	ErrReactionExists     = errors.New("reaction_exists")
	ErrThreadExists       = errors.New("thread_exists")
	ErrMessageDeleted     = errors.New("message_deleted")
	ErrNotAuthor          = errors.New("not_author")
	ErrNotRootMessage     = errors.New("not_root_message")
	ErrUserRequired       = errors.New("user_required")
)
