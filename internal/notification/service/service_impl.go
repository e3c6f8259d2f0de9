package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability/metrics"
	"github.com/larrybwosi/workspace-sub003/pkg/besteffort"
	"github.com/larrybwosi/workspace-sub003/pkg/db/option"
	"github.com/larrybwosi/workspace-sub003/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 50

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Publisher fanout.Publisher `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	store     repository.Repository[notificationdomain.Notification]
	publisher fanout.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) notificationdomain.Service {
	return &Service{
		log:       p.Log.Named("notification.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		store:     repository.ProvideStore[notificationdomain.Notification](p.DB),
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

// NotifyMentions writes one record per mentioned user and pushes each to the
// user's realtime topic.
func (s *Service) NotifyMentions(ctx context.Context, req notificationdomain.MentionRequest) ([]*notificationdomain.Notification, error) {
	now := s.clock.Now()
	seen := make(map[snowflake.ID]struct{}, len(req.UserIDs))
	records := make([]*notificationdomain.Notification, 0, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		if userID == 0 || (req.ActorID != nil && userID == *req.ActorID) {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		records = append(records, &notificationdomain.Notification{
			ID:          s.genID.Generate(),
			WorkspaceID: req.WorkspaceID,
			UserID:      userID,
			Kind:        notificationdomain.KindMention,
			MessageID:   req.MessageID,
			ChannelID:   req.ChannelID,
			ActorID:     req.ActorID,
			CreatedAt:   now,
		})
	}
	if len(records) == 0 {
		return nil, nil
	}
	if err := s.store.BatchCreate(ctx, records); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		for _, record := range records {
			record := record
			besteffort.Do(ctx, s.log, s.metrics, "notification.publish", func(ctx context.Context) error {
				return s.publisher.Publish(ctx, fanout.UserTopic(record.UserID), "notification.created", record)
			})
		}
	}
	return records, nil
}

func (s *Service) ListUnread(ctx context.Context, userID snowflake.ID, limit int) ([]*notificationdomain.Notification, error) {
	if userID == 0 {
		return nil, notificationdomain.ErrInvalidUser
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	return s.store.Find(ctx, &notificationdomain.Notification{UserID: userID},
		option.WithWhere("read_at IS NULL"),
		option.WithOrder("id DESC"),
		option.WithLimit(limit),
	)
}

func (s *Service) MarkRead(ctx context.Context, userID, id snowflake.ID) error {
	existing, err := s.store.FindOne(ctx, &notificationdomain.Notification{ID: id, UserID: userID})
	if err != nil {
		return err
	}
	if existing == nil {
		return notificationdomain.ErrNotificationNotFound
	}
	if existing.ReadAt != nil {
		return nil
	}
	_, err = s.store.Update(ctx, id, map[string]any{"read_at": s.clock.Now()})
	return err
}
