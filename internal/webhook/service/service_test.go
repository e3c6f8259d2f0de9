package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	auditrepo "github.com/larrybwosi/workspace-sub003/internal/audit/repository"
	auditservice "github.com/larrybwosi/workspace-sub003/internal/audit/service"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/config"
	"github.com/larrybwosi/workspace-sub003/internal/signature"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/repository"
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

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	svc        webhookdomain.Service
	dispatcher *Dispatcher
	workspace  *workspacedomain.Workspace
	owner      snowflake.ID
}

func testPolicy() config.DeliveryPolicy {
	return config.DeliveryPolicy{
		Timeout:         2 * time.Second,
		MaxAttempts:     3,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      5 * time.Millisecond,
		MaxConcurrency:  2,
		RetryOnStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest(
		&workspacedomain.Workspace{},
		&workspacedomain.Member{},
		&webhookdomain.Webhook{},
		&webhookdomain.IncomingWebhook{},
		&webhookdomain.Delivery{},
		&auditdomain.AuditLog{},
	)
	require.NoError(t, err)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: fake})
	workspaces := workspaceservice.New(workspaceservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: workspacerepo.Provide(), Clock: fake})
	owner := node.Generate()
	ws, err := workspaces.CreateWorkspace(context.Background(), owner, workspacedomain.CreateWorkspaceRequest{Name: "Acme Ops"})
	require.NoError(t, err)

	svc := New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: fake, AuditSvc: audit})
	dispatcher := NewDispatcher(DispatcherParams{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		Clock:      fake,
		Config:     config.Config{},
		Policy:     config.NewStaticDeliveryPolicyHolder(testPolicy()),
		Workspaces: workspaces,
		AuditSvc:   audit,
	})
	return fixture{db: conn, node: node, svc: svc, dispatcher: dispatcher, workspace: ws, owner: owner}
}

func (f fixture) register(t *testing.T, url string, events []string, channelID *snowflake.ID, format string) *webhookdomain.RegisteredWebhook {
	t.Helper()
	registered, err := f.svc.Register(context.Background(), f.owner, f.workspace.ID, channelID, webhookdomain.RegisterRequest{
		Name:   "hook",
		URL:    url,
		Events: events,
		Format: format,
	})
	require.NoError(t, err)
	return registered
}

func (f fixture) deliveries(t *testing.T, webhookID snowflake.ID) []webhookdomain.Delivery {
	t.Helper()
	var rows []webhookdomain.Delivery
	require.NoError(t, f.db.Where("webhook_id = ?", webhookID).Order("attempt ASC").Find(&rows).Error)
	return rows
}

func TestDispatchSignsAndRecordsEachSubscriberIndependently(t *testing.T) {
	f := newFixture(t)

	var (
		mu       sync.Mutex
		received []*http.Request
		bodies   [][]byte
	)
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r)
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okServer.Close()

	var failures int32
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&failures, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failServer.Close()

	good := f.register(t, okServer.URL, []string{"message.created"}, nil, "")
	bad := f.register(t, failServer.URL, []string{"*"}, nil, "")

	results := f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "message.created", map[string]any{
		"content": "hello",
	})
	require.Len(t, results, 2)

	byHook := map[snowflake.ID]webhookdomain.DeliveryResult{}
	for _, r := range results {
		byHook[r.WebhookID] = r
	}
	assert.True(t, byHook[good.Webhook.ID].Success)
	assert.Equal(t, 1, byHook[good.Webhook.ID].Attempts)
	assert.False(t, byHook[bad.Webhook.ID].Success)
	assert.Equal(t, 3, byHook[bad.Webhook.ID].Attempts)
	assert.ErrorIs(t, byHook[bad.Webhook.ID].Err, webhookdomain.ErrDeliveryFailed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&failures))

	require.Len(t, received, 1)
	req := received[0]
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "message.created", req.Header.Get(HeaderEvent))
	assert.Len(t, req.Header.Get(HeaderDelivery), 26)
	assert.NoError(t, signature.Verify(good.Secret, bodies[0], signature.ParseHeader(req.Header.Get(HeaderSignature))))
	assert.NoError(t, signature.VerifyTimestamped(
		good.Secret, bodies[0],
		signature.ParseHeader(req.Header.Get(HeaderSignatureTimestamped)),
		req.Header.Get(HeaderTimestamp),
		time.Date(2026, 5, 4, 10, 0, 1, 0, time.UTC),
		time.Minute,
	))

	var envelope struct {
		Event     string `json:"event"`
		Workspace struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"workspace"`
		Data      map[string]any `json:"data"`
		Timestamp string         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(bodies[0], &envelope))
	assert.Equal(t, "message.created", envelope.Event)
	assert.Equal(t, f.workspace.ID.String(), envelope.Workspace.ID)
	assert.Equal(t, "Acme Ops", envelope.Workspace.Name)
	assert.Equal(t, "hello", envelope.Data["content"])
	assert.Equal(t, "2026-05-04T10:00:00Z", envelope.Timestamp)

	goodRows := f.deliveries(t, good.Webhook.ID)
	require.Len(t, goodRows, 1)
	assert.Equal(t, webhookdomain.StatusSuccess, goodRows[0].Status)

	badRows := f.deliveries(t, bad.Webhook.ID)
	require.Len(t, badRows, 3)
	for i, row := range badRows {
		assert.Equal(t, i+1, row.Attempt)
		assert.Equal(t, webhookdomain.StatusFailed, row.Status)
		assert.Equal(t, badRows[0].DeliveryID, row.DeliveryID)
		require.NotNil(t, row.Error)
	}

	stored, err := f.svc.Get(context.Background(), bad.Webhook.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.DeliveryCount)
	assert.Equal(t, int64(0), stored.SuccessCount)
	assert.NotNil(t, stored.LastTriggeredAt)

	var fires int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "webhook.fire").Count(&fires).Error)
	assert.Equal(t, int64(2), fires)
}

func TestDispatchDoesNotRetryClientErrors(t *testing.T) {
	f := newFixture(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer server.Close()

	hook := f.register(t, server.URL, []string{"message.created"}, nil, "json")
	results := f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "message.created", nil)

	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Equal(t, http.StatusBadRequest, results[0].StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	rows := f.deliveries(t, hook.Webhook.ID)
	require.Len(t, rows, 1)
	assert.Equal(t, `{"error":"nope"}`, rows[0].Response["body"])
}

func TestDispatchRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	hook := f.register(t, server.URL, []string{"*"}, nil, "")
	results := f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "reaction.added", nil)

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 2, results[0].Attempts)
	assert.NoError(t, results[0].Err)

	stored, err := f.svc.Get(context.Background(), hook.Webhook.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.SuccessCount)
}

func TestDispatchFiltersByEventAndChannel(t *testing.T) {
	f := newFixture(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	channelA := f.node.Generate()
	channelB := f.node.Generate()
	f.register(t, server.URL, []string{"reaction.added"}, nil, "")
	scopedA := f.register(t, server.URL, []string{"message.created"}, &channelA, "")
	f.register(t, server.URL, []string{"message.created"}, &channelB, "")
	inactive := f.register(t, server.URL, []string{"*"}, nil, "")
	require.NoError(t, f.svc.Deactivate(context.Background(), f.owner, inactive.Webhook.ID))

	results := f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "message.created", map[string]any{
		"channelId": channelA.String(),
	})
	require.Len(t, results, 1)
	assert.Equal(t, scopedA.Webhook.ID, results[0].WebhookID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.Empty(t, f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "thread.created", nil))
}

func TestDispatchSlackFormat(t *testing.T) {
	f := newFixture(t)
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f.register(t, server.URL, []string{"message.created"}, nil, "slack")
	results := f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "message.created", map[string]any{"content": "ship it"})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, "*message.created* in Acme Ops", payload["text"])
	attachments, ok := payload["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		req  webhookdomain.RegisterRequest
		want error
	}{
		{webhookdomain.RegisterRequest{URL: "https://x.test", Events: []string{"*"}}, webhookdomain.ErrInvalidName},
		{webhookdomain.RegisterRequest{Name: "a", URL: "ftp://x.test", Events: []string{"*"}}, webhookdomain.ErrInvalidURL},
		{webhookdomain.RegisterRequest{Name: "a", URL: "/relative", Events: []string{"*"}}, webhookdomain.ErrInvalidURL},
		{webhookdomain.RegisterRequest{Name: "a", URL: "https://x.test"}, webhookdomain.ErrInvalidEvents},
		{webhookdomain.RegisterRequest{Name: "a", URL: "https://x.test", Events: []string{"invoice.paid"}}, webhookdomain.ErrInvalidEvents},
		{webhookdomain.RegisterRequest{Name: "a", URL: "https://x.test", Events: []string{"*"}, Format: "xml"}, webhookdomain.ErrInvalidFormat},
	}
	for i, tc := range cases {
		_, err := f.svc.Register(ctx, f.owner, f.workspace.ID, nil, tc.req)
		assert.ErrorIs(t, err, tc.want, strconv.Itoa(i))
	}
}

func TestProvisionIncoming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	channelID := f.node.Generate()

	scoped, err := f.svc.ProvisionIncoming(ctx, f.owner, f.workspace.ID, &channelID, webhookdomain.ProvisionIncomingRequest{Name: "CI"})
	require.NoError(t, err)
	assert.NotEmpty(t, scoped.Token)
	assert.NotEmpty(t, scoped.Secret)
	assert.Equal(t, "/v1/webhooks/incoming", scoped.URL)

	stored, err := repository.Provide().FindIncomingByToken(ctx, f.db, scoped.Token)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, scoped.Secret, stored.Secret)

	workspaceLevel, err := f.svc.ProvisionIncoming(ctx, f.owner, f.workspace.ID, nil, webhookdomain.ProvisionIncomingRequest{})
	require.NoError(t, err)
	assert.Empty(t, workspaceLevel.Token)
	assert.Nil(t, workspaceLevel.ChannelID)
}

func TestListDeliveriesPages(t *testing.T) {
	f := newFixture(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hook := f.register(t, server.URL, []string{"*"}, nil, "")
	f.dispatcher.Dispatch(context.Background(), f.workspace.ID, "message.created", nil)

	page, err := f.svc.ListDeliveries(context.Background(), hook.Webhook.ID, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Deliveries, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, 3, page.Deliveries[0].Attempt)

	next, err := f.svc.ListDeliveries(context.Background(), hook.Webhook.ID, pagination.Pagination{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Deliveries, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, 1, next.Deliveries[0].Attempt)

	_, err = f.svc.ListDeliveries(context.Background(), hook.Webhook.ID, pagination.Pagination{Cursor: "!!"})
	assert.ErrorIs(t, err, webhookdomain.ErrInvalidCursor)

	_, err = f.svc.ListDeliveries(context.Background(), f.node.Generate(), pagination.Pagination{})
	assert.ErrorIs(t, err, webhookdomain.ErrWebhookNotFound)
}
