package service

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"gorm.io/gorm"
)

const maxThreadTitle = 80

// Edit replaces the content of the caller's own message. Mentions are not
// re-resolved.
func (s *Service) Edit(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, content string) (*messagedomain.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, messagedomain.ErrInvalidContent
	}
	if utf8.RuneCountInString(content) > messagedomain.MaxContentLength {
		return nil, messagedomain.ErrContentTooLong
	}

	msg, _, err := s.loadForPrincipal(ctx, principal, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, messagedomain.ErrMessageDeleted
	}
	if !isAuthor(principal, msg) {
		return nil, messagedomain.ErrNotAuthor
	}

	now := s.clock.Now()
	if err := s.repo.UpdateContent(ctx, s.db, msg.ID, content, now); err != nil {
		return nil, err
	}
	previous := msg.Content
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	msg.UpdatedAt = now

	view, err := s.view(ctx, msg)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, channelTopic(msg), messagedomain.EventMessageUpdated, view)
	s.dispatch(ctx, msg.WorkspaceID, messagedomain.EventMessageUpdated, messageData(view))
	s.audit(ctx, principal, msg.WorkspaceID, "message.update", "message", msg.ID, map[string]any{
		"channel_id":      msg.ChannelID.String(),
		"previous_length": utf8.RuneCountInString(previous),
		"length":          utf8.RuneCountInString(content),
	})
	return view, nil
}

// Delete applies the three way policy: a message that owns a thread takes
// the thread with it, a message with replies is tombstoned in place, anything
// else is removed.
func (s *Service) Delete(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID) (*messagedomain.DeleteResult, error) {
	msg, _, err := s.loadForPrincipal(ctx, principal, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeDelete(ctx, principal, msg); err != nil {
		return nil, err
	}

	result := &messagedomain.DeleteResult{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		ThreadID:  msg.ThreadID,
	}
	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned, err := s.repo.FindThreadByRoot(ctx, tx, msg.ID)
		if err != nil {
			return err
		}
		if owned != nil {
			if err := s.repo.DeleteThread(ctx, tx, owned.ID); err != nil {
				return err
			}
			result.Mode = messagedomain.DeleteModeThreadRemoved
			result.ThreadID = owned.ID
			result.ThreadRemoved = true
		}

		replies, err := s.repo.CountReplies(ctx, tx, msg.ID)
		if err != nil {
			return err
		}
		if replies > 0 {
			if result.Mode == "" {
				result.Mode = messagedomain.DeleteModeTombstoned
			}
			return s.repo.TombstoneMessage(ctx, tx, msg.ID, now)
		}
		if result.Mode == "" {
			result.Mode = messagedomain.DeleteModeDeleted
		}
		return s.repo.DeleteMessage(ctx, tx, msg.ID)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, channelTopic(msg), messagedomain.EventMessageDeleted, result)
	s.dispatch(ctx, msg.WorkspaceID, messagedomain.EventMessageDeleted, map[string]any{
		"messageId":     result.MessageID.String(),
		"channelId":     result.ChannelID.String(),
		"threadId":      result.ThreadID.String(),
		"mode":          result.Mode,
		"threadRemoved": result.ThreadRemoved,
	})
	s.audit(ctx, principal, msg.WorkspaceID, "message.delete", "message", msg.ID, map[string]any{
		"channel_id":     msg.ChannelID.String(),
		"mode":           result.Mode,
		"thread_removed": result.ThreadRemoved,
		"own_message":    isAuthor(principal, msg),
	})
	return result, nil
}

func (s *Service) authorizeDelete(ctx context.Context, principal gatewaydomain.Principal, msg *messagedomain.Message) error {
	if isAuthor(principal, msg) {
		return nil
	}
	if !principal.ActsAsUser() || principal.UserID == nil {
		return messagedomain.ErrNotAuthor
	}
	return s.authorizer.Authorize(ctx, *principal.UserID, msg.WorkspaceID, access.ObjectMessage, access.ActionDeleteAny)
}

// StartThread opens a thread owned by a root message.
func (s *Service) StartThread(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, title string) (*messagedomain.Thread, error) {
	msg, _, err := s.loadForPrincipal(ctx, principal, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, messagedomain.ErrMessageDeleted
	}
	if msg.ReplyToID != nil {
		return nil, messagedomain.ErrNotRootMessage
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(msg.Content)
	}
	if title == "" {
		title = "Thread"
	}
	if utf8.RuneCountInString(title) > maxThreadTitle {
		title = string([]rune(title)[:maxThreadTitle])
	}

	rootID := msg.ID
	thread := &messagedomain.Thread{
		ID:            s.genID.Generate(),
		ChannelID:     msg.ChannelID,
		Title:         title,
		RootMessageID: &rootID,
		CreatedAt:     s.clock.Now(),
	}
	if authorID := principal.AuthorID(); authorID != 0 {
		thread.CreatedBy = &authorID
	}
	if err := s.repo.InsertThread(ctx, s.db, thread); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, messagedomain.ErrThreadExists
		}
		return nil, err
	}

	s.publish(ctx, channelTopic(msg), messagedomain.EventThreadCreated, thread)
	s.dispatch(ctx, msg.WorkspaceID, messagedomain.EventThreadCreated, map[string]any{
		"threadId":      thread.ID.String(),
		"channelId":     thread.ChannelID.String(),
		"rootMessageId": rootID.String(),
		"title":         thread.Title,
	})
	s.audit(ctx, principal, msg.WorkspaceID, "thread.create", "thread", thread.ID, map[string]any{
		"channel_id":      msg.ChannelID.String(),
		"root_message_id": rootID.String(),
	})
	return thread, nil
}

func (s *Service) AddReaction(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, emoji string) (*messagedomain.Reaction, error) {
	userID, emoji, err := reactionInput(principal, emoji)
	if err != nil {
		return nil, err
	}
	msg, _, err := s.loadForPrincipal(ctx, principal, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, messagedomain.ErrMessageDeleted
	}

	reaction := &messagedomain.Reaction{
		ID:        s.genID.Generate(),
		MessageID: msg.ID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.InsertReaction(ctx, s.db, reaction); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, messagedomain.ErrReactionExists
		}
		return nil, err
	}

	s.publish(ctx, channelTopic(msg), messagedomain.EventReactionAdded, reaction)
	s.dispatch(ctx, msg.WorkspaceID, messagedomain.EventReactionAdded, reactionData(msg, userID, emoji))
	return reaction, nil
}

func (s *Service) RemoveReaction(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID, emoji string) error {
	userID, emoji, err := reactionInput(principal, emoji)
	if err != nil {
		return err
	}
	msg, _, err := s.loadForPrincipal(ctx, principal, messageID)
	if err != nil {
		return err
	}

	removed, err := s.repo.DeleteReaction(ctx, s.db, msg.ID, userID, emoji)
	if err != nil {
		return err
	}
	if removed == 0 {
		return messagedomain.ErrReactionNotFound
	}

	s.publish(ctx, channelTopic(msg), messagedomain.EventReactionRemoved, reactionData(msg, userID, emoji))
	s.dispatch(ctx, msg.WorkspaceID, messagedomain.EventReactionRemoved, reactionData(msg, userID, emoji))
	return nil
}

func reactionInput(principal gatewaydomain.Principal, emoji string) (snowflake.ID, string, error) {
	userID := principal.AuthorID()
	if userID == 0 {
		return 0, "", messagedomain.ErrUserRequired
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > messagedomain.MaxEmojiLength {
		return 0, "", messagedomain.ErrInvalidEmoji
	}
	if strings.IndexFunc(emoji, unicode.IsSpace) >= 0 {
		return 0, "", messagedomain.ErrInvalidEmoji
	}
	return userID, emoji, nil
}

func reactionData(msg *messagedomain.Message, userID snowflake.ID, emoji string) map[string]any {
	return map[string]any{
		"messageId": msg.ID.String(),
		"channelId": msg.ChannelID.String(),
		"threadId":  msg.ThreadID.String(),
		"userId":    userID.String(),
		"emoji":     emoji,
	}
}

func isAuthor(principal gatewaydomain.Principal, msg *messagedomain.Message) bool {
	authorID := principal.AuthorID()
	return authorID != 0 && msg.AuthorID != nil && *msg.AuthorID == authorID
}
