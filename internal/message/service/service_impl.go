package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	"github.com/larrybwosi/workspace-sub003/internal/mention"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	"github.com/larrybwosi/workspace-sub003/internal/observability/metrics"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultThreadTitle = "General"

var messageTypes = map[string]struct{}{
	messagedomain.TypeText:        {},
	messagedomain.TypeFile:        {},
	messagedomain.TypeSystem:      {},
	messagedomain.TypeIntegration: {},
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          messagedomain.Repository
	Clock         clock.Clock
	Gate          *access.Gate
	Authorizer    *access.Authorizer
	Workspaces    workspacedomain.Service
	Notifications notificationdomain.Service `optional:"true"`
	Publisher     fanout.Publisher           `optional:"true"`
	Dispatcher    webhookdomain.Dispatcher   `optional:"true"`
	AuditSvc      auditdomain.Service        `optional:"true"`
	Metrics       *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          messagedomain.Repository
	clock         clock.Clock
	gate          *access.Gate
	authorizer    *access.Authorizer
	workspaces    workspacedomain.Service
	notifications notificationdomain.Service
	publisher     fanout.Publisher
	dispatcher    webhookdomain.Dispatcher
	auditSvc      auditdomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) messagedomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("message.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		clock:         p.Clock,
		gate:          p.Gate,
		authorizer:    p.Authorizer,
		workspaces:    p.Workspaces,
		notifications: p.Notifications,
		publisher:     p.Publisher,
		dispatcher:    p.Dispatcher,
		auditSvc:      p.AuditSvc,
		metrics:       p.Metrics,
	}
}

// Send validates, resolves the target thread and mentions, persists the
// message with its attachments and mentions in one transaction, then runs the
// side effects. Side effect failures never fail the call.
func (s *Service) Send(ctx context.Context, req messagedomain.SendRequest) (*messagedomain.MessageView, error) {
	content, messageType, err := validateSend(req)
	if err != nil {
		return nil, err
	}

	channel, err := s.gate.RequireChannel(ctx, req.Principal, req.ChannelID)
	if err != nil {
		return nil, err
	}

	threadID, replyToID, depth, err := s.resolvePlacement(ctx, req, channel)
	if err != nil {
		return nil, err
	}

	authorID := req.Principal.AuthorID()
	mentioned, err := s.resolveMentions(ctx, channel.WorkspaceID, content, authorID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	msg := &messagedomain.Message{
		ID:          s.genID.Generate(),
		WorkspaceID: channel.WorkspaceID,
		ChannelID:   channel.ID,
		ThreadID:    threadID,
		Content:     content,
		MessageType: messageType,
		ReplyToID:   replyToID,
		Depth:       depth,
		Source:      req.Principal.Source(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if authorID != 0 {
		msg.AuthorID = &authorID
	}
	if len(req.Metadata) > 0 {
		msg.Metadata = datatypes.JSONMap(req.Metadata)
	}

	attachments := make([]messagedomain.Attachment, 0, len(req.Attachments))
	for _, in := range req.Attachments {
		attachments = append(attachments, messagedomain.Attachment{
			ID:        s.genID.Generate(),
			MessageID: msg.ID,
			FileName:  strings.TrimSpace(in.FileName),
			URL:       strings.TrimSpace(in.URL),
			MimeType:  strings.TrimSpace(in.MimeType),
			SizeBytes: in.SizeBytes,
			CreatedAt: now,
		})
	}
	mentions := make([]messagedomain.Mention, 0, len(mentioned))
	for _, userID := range mentioned {
		mentions = append(mentions, messagedomain.Mention{
			ID:        s.genID.Generate(),
			MessageID: msg.ID,
			UserID:    userID,
			CreatedAt: now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertMessage(ctx, tx, msg); err != nil {
			return err
		}
		if err := s.repo.InsertAttachments(ctx, tx, attachments); err != nil {
			return err
		}
		return s.repo.InsertMentions(ctx, tx, mentions)
	})
	if err != nil {
		return nil, err
	}

	view := &messagedomain.MessageView{Message: *msg, Attachments: attachments, Mentions: mentioned}
	s.metrics.RecordMessageIngested(ctx, msg.Source)
	s.afterCreate(ctx, req.Principal, view)
	return view, nil
}

func validateSend(req messagedomain.SendRequest) (string, string, error) {
	if req.ChannelID == 0 {
		return "", "", messagedomain.ErrInvalidChannel
	}
	content := strings.TrimSpace(req.Content)
	if content == "" && len(req.Attachments) == 0 {
		return "", "", messagedomain.ErrInvalidContent
	}
	if utf8.RuneCountInString(content) > messagedomain.MaxContentLength {
		return "", "", messagedomain.ErrContentTooLong
	}

	messageType := strings.ToLower(strings.TrimSpace(req.MessageType))
	if messageType == "" {
		messageType = messagedomain.TypeText
		if content == "" {
			messageType = messagedomain.TypeFile
		}
	}
	if _, ok := messageTypes[messageType]; !ok {
		return "", "", messagedomain.ErrInvalidMessageType
	}

	if len(req.Attachments) > messagedomain.MaxAttachments {
		return "", "", messagedomain.ErrTooManyAttachments
	}
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.FileName) == "" || a.SizeBytes < 0 {
			return "", "", messagedomain.ErrInvalidAttachment
		}
		parsed, err := url.Parse(strings.TrimSpace(a.URL))
		if err != nil || parsed.Host == "" || (parsed.Scheme != "https" && parsed.Scheme != "http") {
			return "", "", messagedomain.ErrInvalidAttachment
		}
	}
	return content, messageType, nil
}

// resolvePlacement picks the thread and parent for a new message. Replies
// to a reply are re-parented onto the root so threading stays one level deep.
func (s *Service) resolvePlacement(ctx context.Context, req messagedomain.SendRequest, channel *workspacedomain.Channel) (snowflake.ID, *snowflake.ID, int, error) {
	if req.ReplyToID != nil {
		parent, err := s.repo.FindMessage(ctx, s.db, *req.ReplyToID)
		if err != nil {
			return 0, nil, 0, err
		}
		if parent == nil || parent.ChannelID != channel.ID {
			return 0, nil, 0, messagedomain.ErrParentNotFound
		}
		root := parent
		if parent.ReplyToID != nil {
			root, err = s.repo.FindMessage(ctx, s.db, *parent.ReplyToID)
			if err != nil {
				return 0, nil, 0, err
			}
			if root == nil {
				return 0, nil, 0, messagedomain.ErrParentNotFound
			}
		}
		threadID := root.ThreadID
		owned, err := s.repo.FindThreadByRoot(ctx, s.db, root.ID)
		if err != nil {
			return 0, nil, 0, err
		}
		if owned != nil {
			threadID = owned.ID
		}
		rootID := root.ID
		return threadID, &rootID, 1, nil
	}

	if req.ThreadID != nil {
		thread, err := s.repo.FindThread(ctx, s.db, *req.ThreadID)
		if err != nil {
			return 0, nil, 0, err
		}
		if thread == nil || thread.ChannelID != channel.ID {
			return 0, nil, 0, messagedomain.ErrThreadNotFound
		}
		return thread.ID, nil, 0, nil
	}

	thread, err := s.defaultThread(ctx, channel.ID, req.Principal)
	if err != nil {
		return 0, nil, 0, err
	}
	return thread.ID, nil, 0, nil
}

// defaultThread finds the channel's implicit thread or creates it. Losing a
// creation race is expected and resolved by reading the winner's row.
func (s *Service) defaultThread(ctx context.Context, channelID snowflake.ID, principal gatewaydomain.Principal) (*messagedomain.Thread, error) {
	thread, err := s.repo.FindDefaultThread(ctx, s.db, channelID)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		return thread, nil
	}

	key := messagedomain.DefaultThreadKey
	candidate := &messagedomain.Thread{
		ID:        s.genID.Generate(),
		ChannelID: channelID,
		Title:     defaultThreadTitle,
		WellKnown: &key,
		CreatedAt: s.clock.Now(),
	}
	if authorID := principal.AuthorID(); authorID != 0 {
		candidate.CreatedBy = &authorID
	}
	inserted, err := s.repo.InsertThreadIfAbsent(ctx, s.db, candidate)
	if err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}
	if inserted {
		return candidate, nil
	}

	thread, err = s.repo.FindDefaultThread(ctx, s.db, channelID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, errors.New("default thread missing after conflict")
	}
	return thread, nil
}

func (s *Service) resolveMentions(ctx context.Context, workspaceID snowflake.ID, content string, authorID snowflake.ID) ([]snowflake.ID, error) {
	tokens := mention.ExtractTokens(content)
	if len(tokens) == 0 {
		return nil, nil
	}
	directory, err := s.workspaces.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return mention.Resolve(tokens, directory, authorID), nil
}

// List pages a channel newest first. A cursor only ever moves to older ids.
func (s *Service) List(ctx context.Context, principal gatewaydomain.Principal, req messagedomain.ListRequest) (*messagedomain.MessagePage, error) {
	if req.ChannelID == 0 {
		return nil, messagedomain.ErrInvalidChannel
	}
	if _, err := s.gate.RequireChannel(ctx, principal, req.ChannelID); err != nil {
		return nil, err
	}

	var beforeID snowflake.ID
	if token := strings.TrimSpace(req.Cursor); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, messagedomain.ErrInvalidCursor
		}
		beforeID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, messagedomain.ErrInvalidCursor
		}
	}

	limit := req.Size()
	rows, err := s.repo.ListMessages(ctx, s.db, messagedomain.ListFilter{
		ChannelID: req.ChannelID,
		ThreadID:  req.ThreadID,
		BeforeID:  beforeID,
		Limit:     limit + 1,
	})
	if err != nil {
		return nil, err
	}
	rows, info := pagination.BuildCursorPageInfo(rows, limit, func(m *messagedomain.Message) string {
		return pagination.IDCursor(m.ID.String())
	})

	views, err := s.hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &messagedomain.MessagePage{PageInfo: info, Messages: views}, nil
}

func (s *Service) hydrate(ctx context.Context, rows []*messagedomain.Message) ([]*messagedomain.MessageView, error) {
	views := make([]*messagedomain.MessageView, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	attachments, err := s.repo.ListAttachments(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	mentions, err := s.repo.ListMentions(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byMessage := make(map[snowflake.ID]*messagedomain.MessageView, len(rows))
	for _, row := range rows {
		view := &messagedomain.MessageView{
			Message:     *row,
			Attachments: []messagedomain.Attachment{},
			Mentions:    []snowflake.ID{},
		}
		byMessage[row.ID] = view
		views = append(views, view)
	}
	for _, a := range attachments {
		if view, ok := byMessage[a.MessageID]; ok {
			view.Attachments = append(view.Attachments, a)
		}
	}
	for _, m := range mentions {
		if view, ok := byMessage[m.MessageID]; ok {
			view.Mentions = append(view.Mentions, m.UserID)
		}
	}
	return views, nil
}

func (s *Service) view(ctx context.Context, msg *messagedomain.Message) (*messagedomain.MessageView, error) {
	views, err := s.hydrate(ctx, []*messagedomain.Message{msg})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// GetThread returns a thread when the principal can read its channel.
func (s *Service) GetThread(ctx context.Context, principal gatewaydomain.Principal, threadID snowflake.ID) (*messagedomain.Thread, error) {
	thread, err := s.repo.FindThread(ctx, s.db, threadID)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, messagedomain.ErrThreadNotFound
	}
	if _, err := s.gate.RequireChannel(ctx, principal, thread.ChannelID); err != nil {
		return nil, err
	}
	return thread, nil
}

// loadForPrincipal resolves a message the principal can see.
func (s *Service) loadForPrincipal(ctx context.Context, principal gatewaydomain.Principal, messageID snowflake.ID) (*messagedomain.Message, *workspacedomain.Channel, error) {
	msg, err := s.repo.FindMessage(ctx, s.db, messageID)
	if err != nil {
		return nil, nil, err
	}
	if msg == nil {
		return nil, nil, messagedomain.ErrMessageNotFound
	}
	channel, err := s.gate.RequireChannel(ctx, principal, msg.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	return msg, channel, nil
}
