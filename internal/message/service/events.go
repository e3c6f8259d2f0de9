package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/besteffort"
	"go.uber.org/zap"
)

// afterCreate runs the post-commit stages in order: notifications, realtime,
// webhooks, audit. Each stage is independent of the others' outcome.
func (s *Service) afterCreate(ctx context.Context, principal gatewaydomain.Principal, view *messagedomain.MessageView) {
	msg := view.Message

	if s.notifications != nil && len(view.Mentions) > 0 {
		besteffort.Do(ctx, s.log, s.metrics, "notification.create", func(ctx context.Context) error {
			_, err := s.notifications.NotifyMentions(ctx, notificationdomain.MentionRequest{
				WorkspaceID: msg.WorkspaceID,
				ChannelID:   msg.ChannelID,
				MessageID:   msg.ID,
				ActorID:     msg.AuthorID,
				UserIDs:     view.Mentions,
			})
			return err
		})
	}

	s.publish(ctx, channelTopic(&msg), messagedomain.EventMessageCreated, view)
	s.dispatch(ctx, msg.WorkspaceID, messagedomain.EventMessageCreated, messageData(view))
	s.audit(ctx, principal, msg.WorkspaceID, "message.create", "message", msg.ID, map[string]any{
		"channel_id":  msg.ChannelID.String(),
		"thread_id":   msg.ThreadID.String(),
		"source":      msg.Source,
		"mentions":    len(view.Mentions),
		"attachments": len(view.Attachments),
	})
}

func (s *Service) publish(ctx context.Context, topic, event string, payload any) {
	if s.publisher == nil {
		return
	}
	res := besteffort.Do(ctx, s.log, s.metrics, "realtime.publish", func(ctx context.Context) error {
		return s.publisher.Publish(ctx, topic, event, payload)
	})
	s.metrics.RecordRealtimePublish(ctx, event, res.Err)
}

func (s *Service) dispatch(ctx context.Context, workspaceID snowflake.ID, event string, data map[string]any) {
	if s.dispatcher == nil {
		return
	}
	besteffort.Do(ctx, s.log, s.metrics, "webhook.dispatch", func(ctx context.Context) error {
		results := s.dispatcher.Dispatch(ctx, workspaceID, event, data)
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		if failed > 0 {
			s.log.Info("webhook deliveries failed",
				zap.String("event", event),
				zap.Int("subscribers", len(results)),
				zap.Int("failed", failed),
			)
		}
		return nil
	})
}

func (s *Service) audit(ctx context.Context, principal gatewaydomain.Principal, workspaceID snowflake.ID, action, resource string, resourceID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		WorkspaceID: &workspaceID,
		ActorType:   auditdomain.ActorType(principal.ActorType()),
		Action:      action,
		Resource:    resource,
		Metadata:    metadata,
	}
	if actorID := principal.ActorID(); actorID != "" {
		entry.ActorID = &actorID
	}
	target := resourceID.String()
	entry.ResourceID = &target
	besteffort.Do(ctx, s.log, s.metrics, "audit.append", func(ctx context.Context) error {
		return s.auditSvc.Append(ctx, entry)
	})
}

func channelTopic(msg *messagedomain.Message) string {
	return fanout.ChannelTopic(msg.ChannelID)
}

// messageData is the webhook payload for message events.
func messageData(view *messagedomain.MessageView) map[string]any {
	data := map[string]any{
		"id":          view.ID.String(),
		"channelId":   view.ChannelID.String(),
		"threadId":    view.ThreadID.String(),
		"content":     view.Content,
		"messageType": view.MessageType,
		"source":      view.Source,
		"depth":       view.Depth,
		"isEdited":    view.IsEdited,
		"createdAt":   view.CreatedAt.UTC().Format(time.RFC3339),
	}
	if view.AuthorID != nil {
		data["authorId"] = view.AuthorID.String()
	} else {
		data["authorId"] = nil
	}
	if view.ReplyToID != nil {
		data["replyToId"] = view.ReplyToID.String()
	}
	if len(view.Metadata) > 0 {
		data["metadata"] = map[string]any(view.Metadata)
	}
	mentions := make([]string, 0, len(view.Mentions))
	for _, id := range view.Mentions {
		mentions = append(mentions, id.String())
	}
	data["mentions"] = mentions
	attachments := make([]map[string]any, 0, len(view.Attachments))
	for _, a := range view.Attachments {
		attachments = append(attachments, map[string]any{
			"fileName":  a.FileName,
			"url":       a.URL,
			"mimeType":  a.MimeType,
			"sizeBytes": a.SizeBytes,
		})
	}
	data["attachments"] = attachments
	return data
}
