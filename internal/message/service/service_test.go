package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	auditrepo "github.com/larrybwosi/workspace-sub003/internal/audit/repository"
	auditservice "github.com/larrybwosi/workspace-sub003/internal/audit/service"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	gatewaydomain "github.com/larrybwosi/workspace-sub003/internal/gateway/domain"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	"github.com/larrybwosi/workspace-sub003/internal/message/repository"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	notificationservice "github.com/larrybwosi/workspace-sub003/internal/notification/service"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	workspacerepo "github.com/larrybwosi/workspace-sub003/internal/workspace/repository"
	workspaceservice "github.com/larrybwosi/workspace-sub003/internal/workspace/service"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/larrybwosi/workspace-sub003/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type published struct {
	topic   string
	event   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, topic, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, event: event, payload: payload})
	return nil
}

func (p *recordingPublisher) byEvent(event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type dispatched struct {
	event string
	data  map[string]any
}

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []dispatched
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ snowflake.ID, event string, data map[string]any) []webhookdomain.DeliveryResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatched{event: event, data: data})
	return nil
}

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        messagedomain.Service
	publisher  *recordingPublisher
	dispatcher *recordingDispatcher

	alice, bob, outsider snowflake.ID
	ws                   *workspacedomain.Workspace
	channel, private     *workspacedomain.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	conn, err := db.NewTest(
		&identitydomain.User{},
		&workspacedomain.Workspace{},
		&workspacedomain.Member{},
		&workspacedomain.Department{},
		&workspacedomain.Channel{},
		&workspacedomain.ChannelMember{},
		&messagedomain.Thread{},
		&messagedomain.Message{},
		&messagedomain.Attachment{},
		&messagedomain.Mention{},
		&messagedomain.Reaction{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	)
	require.NoError(t, err)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: fake})
	workspaces := workspaceservice.New(workspaceservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: workspacerepo.Provide(), Clock: fake})
	enforcer, err := access.NewEnforcer(conn)
	require.NoError(t, err)

	f := &fixture{
		db:         conn,
		node:       node,
		publisher:  &recordingPublisher{},
		dispatcher: &recordingDispatcher{},
		alice:      node.Generate(),
		bob:        node.Generate(),
		outsider:   node.Generate(),
	}
	for id, handle := range map[snowflake.ID]string{f.alice: "alice", f.bob: "bob", f.outsider: "mallory"} {
		require.NoError(t, conn.Create(&identitydomain.User{
			ID: id, Handle: handle, DisplayName: strings.ToUpper(handle[:1]) + handle[1:], Email: handle + "@example.com", CreatedAt: fake.Now(),
		}).Error)
	}

	f.ws, err = workspaces.CreateWorkspace(ctx, f.alice, workspacedomain.CreateWorkspaceRequest{Name: "Acme"})
	require.NoError(t, err)
	_, err = workspaces.AddMember(ctx, f.ws.ID, workspacedomain.AddMemberRequest{UserID: f.bob})
	require.NoError(t, err)
	f.channel, err = workspaces.CreateChannel(ctx, f.ws.ID, &f.alice, workspacedomain.CreateChannelRequest{Name: "ops"})
	require.NoError(t, err)
	f.private, err = workspaces.CreateChannel(ctx, f.ws.ID, &f.alice, workspacedomain.CreateChannelRequest{Name: "leads", IsPrivate: true})
	require.NoError(t, err)

	notifications := notificationservice.New(notificationservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Clock: fake, Publisher: f.publisher})
	f.svc = New(Params{
		DB:            conn,
		Log:           zap.NewNop(),
		GenID:         node,
		Repo:          repository.Provide(),
		Clock:         fake,
		Gate:          access.NewGate(access.GateParams{Log: zap.NewNop(), Workspaces: workspaces}),
		Authorizer:    access.NewAuthorizer(access.AuthorizerParams{Log: zap.NewNop(), Enforcer: enforcer, Workspaces: workspaces, AuditSvc: audit}),
		Workspaces:    workspaces,
		Notifications: notifications,
		Publisher:     f.publisher,
		Dispatcher:    f.dispatcher,
		AuditSvc:      audit,
	})
	return f
}

func (f *fixture) send(t *testing.T, author snowflake.ID, content string, replyTo *snowflake.ID) *messagedomain.MessageView {
	t.Helper()
	view, err := f.svc.Send(context.Background(), messagedomain.SendRequest{
		Principal: gatewaydomain.UserPrincipal(author),
		ChannelID: f.channel.ID,
		ReplyToID: replyTo,
		Content:   content,
	})
	require.NoError(t, err)
	return view
}

func (f *fixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func TestSendCreatesDefaultThreadAndPublishesOnce(t *testing.T) {
	f := newFixture(t)

	view := f.send(t, f.alice, "  ship it  ", nil)

	assert.Equal(t, "ship it", view.Content)
	assert.Equal(t, f.channel.ID, view.ChannelID)
	assert.Equal(t, f.ws.ID, view.WorkspaceID)
	require.NotNil(t, view.AuthorID)
	assert.Equal(t, f.alice, *view.AuthorID)
	assert.Equal(t, messagedomain.TypeText, view.MessageType)
	assert.Equal(t, "user", view.Source)
	assert.Equal(t, 0, view.Depth)

	assert.Equal(t, int64(1), f.count(t, &messagedomain.Message{}, ""))
	var thread messagedomain.Thread
	require.NoError(t, f.db.First(&thread, "channel_id = ?", f.channel.ID).Error)
	assert.True(t, thread.IsDefault())
	assert.Equal(t, thread.ID, view.ThreadID)

	created := f.publisher.byEvent(messagedomain.EventMessageCreated)
	require.Len(t, created, 1)
	assert.Equal(t, fanout.ChannelTopic(f.channel.ID), created[0].topic)

	require.Len(t, f.dispatcher.calls, 1)
	assert.Equal(t, messagedomain.EventMessageCreated, f.dispatcher.calls[0].event)
	assert.Equal(t, f.channel.ID.String(), f.dispatcher.calls[0].data["channelId"])
	assert.Equal(t, "ship it", f.dispatcher.calls[0].data["content"])

	assert.Equal(t, int64(1), f.count(t, &auditdomain.AuditLog{}, "action = ?", "message.create"))

	second := f.send(t, f.bob, "again", nil)
	assert.Equal(t, view.ThreadID, second.ThreadID)
	assert.Equal(t, int64(1), f.count(t, &messagedomain.Thread{}, ""))
}

func TestConcurrentFirstMessagesShareOneThread(t *testing.T) {
	f := newFixture(t)
	const writers = 8

	var wg sync.WaitGroup
	threadIDs := make([]snowflake.ID, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := f.svc.Send(context.Background(), messagedomain.SendRequest{
				Principal: gatewaydomain.UserPrincipal(f.bob),
				ChannelID: f.channel.ID,
				Content:   "first!",
			})
			errs[i] = err
			if err == nil {
				threadIDs[i] = view.ThreadID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, threadIDs[0], threadIDs[i])
	}
	assert.Equal(t, int64(1), f.count(t, &messagedomain.Thread{}, "channel_id = ?", f.channel.ID))
	assert.Equal(t, int64(writers), f.count(t, &messagedomain.Message{}, ""))
	assert.Len(t, f.publisher.byEvent(messagedomain.EventMessageCreated), writers)
}

func TestInsertThreadIfAbsentKeepsFirstDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := repository.Provide()
	key := messagedomain.DefaultThreadKey

	first := &messagedomain.Thread{ID: f.node.Generate(), ChannelID: f.channel.ID, Title: "general", WellKnown: &key, CreatedAt: time.Now().UTC()}
	inserted, err := repo.InsertThreadIfAbsent(ctx, f.db, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	second := &messagedomain.Thread{ID: f.node.Generate(), ChannelID: f.channel.ID, Title: "general", WellKnown: &key, CreatedAt: time.Now().UTC()}
	inserted, err = repo.InsertThreadIfAbsent(ctx, f.db, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := repo.FindDefaultThread(ctx, f.db, f.channel.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestSendResolvesMentionsAndNotifies(t *testing.T) {
	f := newFixture(t)

	view := f.send(t, f.alice, "hey @bob and @alice, also @mallory and @ghost", nil)

	assert.Equal(t, []snowflake.ID{f.bob}, view.Mentions)
	assert.Equal(t, int64(1), f.count(t, &messagedomain.Mention{}, "message_id = ?", view.ID))

	var notes []notificationdomain.Notification
	require.NoError(t, f.db.Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, f.bob, notes[0].UserID)
	assert.Equal(t, view.ID, notes[0].MessageID)

	userEvents := f.publisher.byEvent("notification.created")
	require.Len(t, userEvents, 1)
	assert.Equal(t, fanout.UserTopic(f.bob), userEvents[0].topic)
}

func TestSendAsIntegrationHasNoAuthor(t *testing.T) {
	f := newFixture(t)
	principal := gatewaydomain.Principal{
		Kind:         gatewaydomain.KindWorkspaceToken,
		WorkspaceID:  f.ws.ID,
		CredentialID: f.node.Generate(),
		Permissions:  []string{gatewaydomain.ScopeMessagesWrite},
	}

	view, err := f.svc.Send(context.Background(), messagedomain.SendRequest{
		Principal:   principal,
		ChannelID:   f.channel.ID,
		Content:     "deploy finished @bob",
		Metadata:    map[string]any{"build": "1234"},
		Attachments: []messagedomain.AttachmentInput{{FileName: "log.txt", URL: "https://ci.example.com/log.txt", SizeBytes: 12}},
	})
	require.NoError(t, err)

	assert.Nil(t, view.AuthorID)
	assert.Equal(t, "api", view.Source)
	assert.Equal(t, []snowflake.ID{f.bob}, view.Mentions)
	require.Len(t, view.Attachments, 1)
	assert.Equal(t, "1234", view.Metadata["build"])

	var log auditdomain.AuditLog
	require.NoError(t, f.db.First(&log, "action = ?", "message.create").Error)
	assert.Equal(t, "api_token", log.ActorType)

	_, err = f.svc.Send(context.Background(), messagedomain.SendRequest{Principal: principal, ChannelID: f.private.ID, Content: "x"})
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	user := gatewaydomain.UserPrincipal(f.alice)
	cases := []struct {
		name string
		req  messagedomain.SendRequest
		want error
	}{
		{"missing channel", messagedomain.SendRequest{Principal: user, Content: "x"}, messagedomain.ErrInvalidChannel},
		{"blank content", messagedomain.SendRequest{Principal: user, ChannelID: f.channel.ID, Content: "   "}, messagedomain.ErrInvalidContent},
		{"too long", messagedomain.SendRequest{Principal: user, ChannelID: f.channel.ID, Content: strings.Repeat("a", messagedomain.MaxContentLength+1)}, messagedomain.ErrContentTooLong},
		{"bad type", messagedomain.SendRequest{Principal: user, ChannelID: f.channel.ID, Content: "x", MessageType: "poll"}, messagedomain.ErrInvalidMessageType},
		{"bad attachment", messagedomain.SendRequest{Principal: user, ChannelID: f.channel.ID, Attachments: []messagedomain.AttachmentInput{{FileName: "a", URL: "ftp://x"}}}, messagedomain.ErrInvalidAttachment},
		{"unknown channel", messagedomain.SendRequest{Principal: user, ChannelID: f.node.Generate(), Content: "x"}, workspacedomain.ErrChannelNotFound},
		{"outsider", messagedomain.SendRequest{Principal: gatewaydomain.UserPrincipal(f.outsider), ChannelID: f.channel.ID, Content: "x"}, access.ErrForbidden},
		{"private channel", messagedomain.SendRequest{Principal: gatewaydomain.UserPrincipal(f.bob), ChannelID: f.private.ID, Content: "x"}, access.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Send(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), f.count(t, &messagedomain.Message{}, ""))
	assert.Empty(t, f.publisher.byEvent(messagedomain.EventMessageCreated))
}

func TestRepliesStayOneLevelDeep(t *testing.T) {
	f := newFixture(t)
	root := f.send(t, f.alice, "root", nil)
	reply := f.send(t, f.bob, "reply", &root.ID)
	nested := f.send(t, f.alice, "reply to reply", &reply.ID)

	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, root.ID, *reply.ReplyToID)
	assert.Equal(t, 1, reply.Depth)
	require.NotNil(t, nested.ReplyToID)
	assert.Equal(t, root.ID, *nested.ReplyToID)
	assert.Equal(t, 1, nested.Depth)
	assert.Equal(t, root.ThreadID, nested.ThreadID)

	other := f.node.Generate()
	_, err := f.svc.Send(context.Background(), messagedomain.SendRequest{
		Principal: gatewaydomain.UserPrincipal(f.alice), ChannelID: f.channel.ID, ReplyToID: &other, Content: "x",
	})
	assert.ErrorIs(t, err, messagedomain.ErrParentNotFound)
}

func TestDeletePolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := gatewaydomain.UserPrincipal(f.alice)

	t.Run("leaf is removed", func(t *testing.T) {
		leaf := f.send(t, f.alice, "typo", nil)
		res, err := f.svc.Delete(ctx, owner, leaf.ID)
		require.NoError(t, err)
		assert.Equal(t, messagedomain.DeleteModeDeleted, res.Mode)
		assert.False(t, res.ThreadRemoved)
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Message{}, "id = ?", leaf.ID))
	})

	t.Run("message with replies is tombstoned", func(t *testing.T) {
		parent, err := f.svc.Send(ctx, messagedomain.SendRequest{
			Principal:   owner,
			ChannelID:   f.channel.ID,
			Content:     "question",
			Attachments: []messagedomain.AttachmentInput{{FileName: "a.png", URL: "https://cdn.example.com/a.png"}},
		})
		require.NoError(t, err)
		reply := f.send(t, f.bob, "answer", &parent.ID)

		res, err := f.svc.Delete(ctx, owner, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, messagedomain.DeleteModeTombstoned, res.Mode)

		var stored messagedomain.Message
		require.NoError(t, f.db.First(&stored, "id = ?", parent.ID).Error)
		assert.True(t, stored.IsDeleted)
		assert.Empty(t, stored.Content)
		assert.NotNil(t, stored.DeletedAt)
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Attachment{}, "message_id = ?", parent.ID))
		assert.Equal(t, int64(1), f.count(t, &messagedomain.Message{}, "id = ?", reply.ID))
	})

	t.Run("thread owner takes the thread", func(t *testing.T) {
		root := f.send(t, f.alice, "incident", nil)
		thread, err := f.svc.StartThread(ctx, owner, root.ID, "")
		require.NoError(t, err)
		inThread, err := f.svc.Send(ctx, messagedomain.SendRequest{
			Principal: gatewaydomain.UserPrincipal(f.bob), ChannelID: f.channel.ID, ThreadID: &thread.ID, Content: "looking",
		})
		require.NoError(t, err)

		res, err := f.svc.Delete(ctx, owner, root.ID)
		require.NoError(t, err)
		assert.Equal(t, messagedomain.DeleteModeThreadRemoved, res.Mode)
		assert.True(t, res.ThreadRemoved)
		assert.Equal(t, thread.ID, res.ThreadID)
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Thread{}, "id = ?", thread.ID))
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Message{}, "id IN ?", []snowflake.ID{root.ID, inThread.ID}))

		deleted := f.publisher.byEvent(messagedomain.EventMessageDeleted)
		last := deleted[len(deleted)-1].payload.(*messagedomain.DeleteResult)
		assert.True(t, last.ThreadRemoved)
		assert.Equal(t, thread.ID, last.ThreadID)
	})

	t.Run("nested threads go with their parent", func(t *testing.T) {
		root := f.send(t, f.alice, "rollout", nil)
		outer, err := f.svc.StartThread(ctx, owner, root.ID, "")
		require.NoError(t, err)
		step, err := f.svc.Send(ctx, messagedomain.SendRequest{
			Principal: owner, ChannelID: f.channel.ID, ThreadID: &outer.ID, Content: "step one",
		})
		require.NoError(t, err)
		inner, err := f.svc.StartThread(ctx, owner, step.ID, "")
		require.NoError(t, err)
		deep, err := f.svc.Send(ctx, messagedomain.SendRequest{
			Principal: gatewaydomain.UserPrincipal(f.bob), ChannelID: f.channel.ID, ThreadID: &inner.ID, Content: "done",
		})
		require.NoError(t, err)

		res, err := f.svc.Delete(ctx, owner, root.ID)
		require.NoError(t, err)
		assert.Equal(t, messagedomain.DeleteModeThreadRemoved, res.Mode)
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Thread{}, "id IN ?", []snowflake.ID{outer.ID, inner.ID}))
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Message{}, "id IN ?", []snowflake.ID{step.ID, deep.ID}))
		assert.Equal(t, int64(0), f.count(t, &messagedomain.Thread{}, "root_message_id NOT IN (SELECT id FROM messages)"))
	})

	assert.Equal(t, int64(4), f.count(t, &auditdomain.AuditLog{}, "action = ?", "message.delete"))
}

func TestDeletePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byAlice := f.send(t, f.alice, "owner post", nil)
	byBob := f.send(t, f.bob, "member post", nil)

	_, err := f.svc.Delete(ctx, gatewaydomain.UserPrincipal(f.bob), byAlice.ID)
	assert.ErrorIs(t, err, access.ErrForbidden)

	integration := gatewaydomain.Principal{Kind: gatewaydomain.KindWorkspaceToken, WorkspaceID: f.ws.ID, CredentialID: f.node.Generate()}
	_, err = f.svc.Delete(ctx, integration, byBob.ID)
	assert.ErrorIs(t, err, messagedomain.ErrNotAuthor)

	res, err := f.svc.Delete(ctx, gatewaydomain.UserPrincipal(f.alice), byBob.ID)
	require.NoError(t, err)
	assert.Equal(t, messagedomain.DeleteModeDeleted, res.Mode)

	_, err = f.svc.Delete(ctx, gatewaydomain.UserPrincipal(f.alice), byBob.ID)
	assert.ErrorIs(t, err, messagedomain.ErrMessageNotFound)
}

func TestEditRequiresAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.send(t, f.alice, "draft @bob", nil)

	_, err := f.svc.Edit(ctx, gatewaydomain.UserPrincipal(f.bob), view.ID, "hijack")
	assert.ErrorIs(t, err, messagedomain.ErrNotAuthor)

	_, err = f.svc.Edit(ctx, gatewaydomain.UserPrincipal(f.alice), view.ID, " ")
	assert.ErrorIs(t, err, messagedomain.ErrInvalidContent)

	edited, err := f.svc.Edit(ctx, gatewaydomain.UserPrincipal(f.alice), view.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)
	assert.Equal(t, []snowflake.ID{f.bob}, edited.Mentions)

	updates := f.publisher.byEvent(messagedomain.EventMessageUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, fanout.ChannelTopic(f.channel.ID), updates[0].topic)
}

func TestListPagesNewestFirstWithoutRepeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var sent []snowflake.ID
	for i := 0; i < 5; i++ {
		sent = append(sent, f.send(t, f.alice, "m", nil).ID)
	}

	seen := map[snowflake.ID]bool{}
	var order []snowflake.ID
	cursor := ""
	for pages := 0; pages < 5; pages++ {
		page, err := f.svc.List(ctx, gatewaydomain.UserPrincipal(f.bob), messagedomain.ListRequest{
			Pagination: pagination.Pagination{Limit: 2, Cursor: cursor},
			ChannelID:  f.channel.ID,
		})
		require.NoError(t, err)
		for _, m := range page.Messages {
			assert.False(t, seen[m.ID], "message returned twice")
			seen[m.ID] = true
			order = append(order, m.ID)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []snowflake.ID{sent[4], sent[3], sent[2], sent[1], sent[0]}, order)

	_, err := f.svc.List(ctx, gatewaydomain.UserPrincipal(f.bob), messagedomain.ListRequest{
		Pagination: pagination.Pagination{Cursor: "%%%"},
		ChannelID:  f.channel.ID,
	})
	assert.ErrorIs(t, err, messagedomain.ErrInvalidCursor)

	_, err = f.svc.List(ctx, gatewaydomain.UserPrincipal(f.outsider), messagedomain.ListRequest{ChannelID: f.channel.ID})
	assert.ErrorIs(t, err, access.ErrForbidden)
}

func TestReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := f.send(t, f.alice, "lunch?", nil)
	bob := gatewaydomain.UserPrincipal(f.bob)

	reaction, err := f.svc.AddReaction(ctx, bob, view.ID, " :taco: ")
	require.NoError(t, err)
	assert.Equal(t, ":taco:", reaction.Emoji)

	_, err = f.svc.AddReaction(ctx, bob, view.ID, ":taco:")
	assert.ErrorIs(t, err, messagedomain.ErrReactionExists)

	_, err = f.svc.AddReaction(ctx, bob, view.ID, "two words")
	assert.ErrorIs(t, err, messagedomain.ErrInvalidEmoji)

	integration := gatewaydomain.Principal{Kind: gatewaydomain.KindWorkspaceToken, WorkspaceID: f.ws.ID}
	_, err = f.svc.AddReaction(ctx, integration, view.ID, ":taco:")
	assert.ErrorIs(t, err, messagedomain.ErrUserRequired)

	require.NoError(t, f.svc.RemoveReaction(ctx, bob, view.ID, ":taco:"))
	assert.ErrorIs(t, f.svc.RemoveReaction(ctx, bob, view.ID, ":taco:"), messagedomain.ErrReactionNotFound)

	assert.Len(t, f.publisher.byEvent(messagedomain.EventReactionAdded), 1)
	assert.Len(t, f.publisher.byEvent(messagedomain.EventReactionRemoved), 1)
}

func TestStartThread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, f.alice, strings.Repeat("long title ", 20), nil)
	alice := gatewaydomain.UserPrincipal(f.alice)

	thread, err := f.svc.StartThread(ctx, alice, root.ID, "")
	require.NoError(t, err)
	require.NotNil(t, thread.RootMessageID)
	assert.Equal(t, root.ID, *thread.RootMessageID)
	assert.Len(t, []rune(thread.Title), maxThreadTitle)
	assert.False(t, thread.IsDefault())

	_, err = f.svc.StartThread(ctx, alice, root.ID, "again")
	assert.ErrorIs(t, err, messagedomain.ErrThreadExists)

	reply := f.send(t, f.bob, "into the thread", &root.ID)
	assert.Equal(t, thread.ID, reply.ThreadID)

	_, err = f.svc.StartThread(ctx, alice, reply.ID, "")
	assert.ErrorIs(t, err, messagedomain.ErrNotRootMessage)
}

func TestGetThreadFollowsChannelAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, f.alice, "kickoff", nil)

	thread, err := f.svc.GetThread(ctx, gatewaydomain.UserPrincipal(f.bob), root.ThreadID)
	require.NoError(t, err)
	assert.True(t, thread.IsDefault())

	_, err = f.svc.GetThread(ctx, gatewaydomain.UserPrincipal(f.outsider), root.ThreadID)
	assert.ErrorIs(t, err, access.ErrForbidden)

	_, err = f.svc.GetThread(ctx, gatewaydomain.UserPrincipal(f.alice), f.node.Generate())
	assert.ErrorIs(t, err, messagedomain.ErrThreadNotFound)
}
