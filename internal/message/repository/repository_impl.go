package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	threadColumns  = `id, channel_id, title, well_known, root_message_id, created_by, created_at`
	messageColumns = `id, workspace_id, channel_id, thread_id, author_id, content, message_type, metadata,
		reply_to_id, depth, source, is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at`
)

type repo struct{}

func Provide() messagedomain.Repository {
	return &repo{}
}

func (r *repo) FindDefaultThread(ctx context.Context, db *gorm.DB, channelID snowflake.ID) (*messagedomain.Thread, error) {
	return r.findThread(ctx, db,
		`SELECT `+threadColumns+` FROM threads WHERE channel_id = ? AND well_known = ?`,
		channelID, messagedomain.DefaultThreadKey,
	)
}

func (r *repo) InsertThreadIfAbsent(ctx context.Context, db *gorm.DB, thread *messagedomain.Thread) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(thread)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertThread(ctx context.Context, db *gorm.DB, thread *messagedomain.Thread) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO threads (`+threadColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		thread.ID, thread.ChannelID, thread.Title, thread.WellKnown, thread.RootMessageID, thread.CreatedBy, thread.CreatedAt,
	).Error
}

func (r *repo) FindThread(ctx context.Context, db *gorm.DB, id snowflake.ID) (*messagedomain.Thread, error) {
	return r.findThread(ctx, db, `SELECT `+threadColumns+` FROM threads WHERE id = ?`, id)
}

func (r *repo) FindThreadByRoot(ctx context.Context, db *gorm.DB, messageID snowflake.ID) (*messagedomain.Thread, error) {
	return r.findThread(ctx, db, `SELECT `+threadColumns+` FROM threads WHERE root_message_id = ?`, messageID)
}

func (r *repo) findThread(ctx context.Context, db *gorm.DB, query string, args ...any) (*messagedomain.Thread, error) {
	var thread messagedomain.Thread
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&thread).Error; err != nil {
		return nil, err
	}
	if thread.ID == 0 {
		return nil, nil
	}
	return &thread, nil
}

// DeleteThread removes the thread, every message in it, and every thread
// rooted at one of those messages.
func (r *repo) DeleteThread(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	ids, err := r.threadTree(ctx, db, id)
	if err != nil {
		return err
	}
	statements := []string{
		`DELETE FROM message_attachments WHERE message_id IN (SELECT id FROM messages WHERE thread_id IN ?)`,
		`DELETE FROM message_mentions WHERE message_id IN (SELECT id FROM messages WHERE thread_id IN ?)`,
		`DELETE FROM message_reactions WHERE message_id IN (SELECT id FROM messages WHERE thread_id IN ?)`,
		`DELETE FROM messages WHERE thread_id IN ?`,
		`DELETE FROM threads WHERE id IN ?`,
	}
	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt, ids).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) threadTree(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]snowflake.ID, error) {
	ids := []snowflake.ID{id}
	frontier := []snowflake.ID{id}
	for len(frontier) > 0 {
		var children []snowflake.ID
		err := db.WithContext(ctx).Raw(
			`SELECT t.id FROM threads t JOIN messages m ON m.id = t.root_message_id WHERE m.thread_id IN ?`,
			frontier,
		).Scan(&children).Error
		if err != nil {
			return nil, err
		}
		ids = append(ids, children...)
		frontier = children
	}
	return ids, nil
}

func (r *repo) InsertMessage(ctx context.Context, db *gorm.DB, msg *messagedomain.Message) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.WorkspaceID, msg.ChannelID, msg.ThreadID, msg.AuthorID, msg.Content, msg.MessageType, msg.Metadata,
		msg.ReplyToID, msg.Depth, msg.Source, msg.IsEdited, msg.EditedAt, msg.IsDeleted, msg.DeletedAt, msg.CreatedAt, msg.UpdatedAt,
	).Error
}

func (r *repo) FindMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) (*messagedomain.Message, error) {
	var msg messagedomain.Message
	err := db.WithContext(ctx).Raw(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id).Scan(&msg).Error
	if err != nil {
		return nil, err
	}
	if msg.ID == 0 {
		return nil, nil
	}
	return &msg, nil
}

func (r *repo) UpdateContent(ctx context.Context, db *gorm.DB, id snowflake.ID, content string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE messages SET content = ?, is_edited = ?, edited_at = ?, updated_at = ? WHERE id = ?`,
		content, true, at, at, id,
	).Error
}

// TombstoneMessage clears content in place and strips attachments. The row
// stays so replies keep their parent.
func (r *repo) TombstoneMessage(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	if err := r.DeleteAttachments(ctx, db, id); err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(
		`UPDATE messages SET content = '', is_deleted = ?, deleted_at = ?, updated_at = ? WHERE id = ?`,
		true, at, at, id,
	).Error
}

func (r *repo) DeleteMessage(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	statements := []string{
		`DELETE FROM message_attachments WHERE message_id = ?`,
		`DELETE FROM message_mentions WHERE message_id = ?`,
		`DELETE FROM message_reactions WHERE message_id = ?`,
		`DELETE FROM messages WHERE id = ?`,
	}
	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt, id).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) CountReplies(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM messages WHERE reply_to_id = ?`, id).Scan(&count).Error
	return count, err
}

func (r *repo) ListMessages(ctx context.Context, db *gorm.DB, filter messagedomain.ListFilter) ([]*messagedomain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = ?`
	args := []any{filter.ChannelID}
	if filter.ThreadID != nil {
		query += ` AND thread_id = ?`
		args = append(args, *filter.ThreadID)
	}
	if filter.BeforeID != 0 {
		query += ` AND id < ?`
		args = append(args, filter.BeforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var messages []*messagedomain.Message
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repo) InsertAttachments(ctx context.Context, db *gorm.DB, attachments []messagedomain.Attachment) error {
	for _, a := range attachments {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO message_attachments (id, message_id, file_name, url, mime_type, size_bytes, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.MessageID, a.FileName, a.URL, a.MimeType, a.SizeBytes, a.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListAttachments(ctx context.Context, db *gorm.DB, messageIDs []snowflake.ID) ([]messagedomain.Attachment, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var attachments []messagedomain.Attachment
	err := db.WithContext(ctx).Raw(
		`SELECT id, message_id, file_name, url, mime_type, size_bytes, created_at
		 FROM message_attachments WHERE message_id IN ? ORDER BY id ASC`, messageIDs,
	).Scan(&attachments).Error
	return attachments, err
}

func (r *repo) DeleteAttachments(ctx context.Context, db *gorm.DB, messageID snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM message_attachments WHERE message_id = ?`, messageID).Error
}

func (r *repo) InsertMentions(ctx context.Context, db *gorm.DB, mentions []messagedomain.Mention) error {
	for _, m := range mentions {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO message_mentions (id, message_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
			m.ID, m.MessageID, m.UserID, m.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListMentions(ctx context.Context, db *gorm.DB, messageIDs []snowflake.ID) ([]messagedomain.Mention, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var mentions []messagedomain.Mention
	err := db.WithContext(ctx).Raw(
		`SELECT id, message_id, user_id, created_at
		 FROM message_mentions WHERE message_id IN ? ORDER BY id ASC`, messageIDs,
	).Scan(&mentions).Error
	return mentions, err
}

func (r *repo) InsertReaction(ctx context.Context, db *gorm.DB, reaction *messagedomain.Reaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?, ?)`,
		reaction.ID, reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
	).Error
}

func (r *repo) DeleteReaction(ctx context.Context, db *gorm.DB, messageID, userID snowflake.ID, emoji string) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji,
	)
	return result.RowsAffected, result.Error
}
