package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/config"
	"github.com/larrybwosi/workspace-sub003/internal/observability/metrics"
	"github.com/larrybwosi/workspace-sub003/internal/observability/tracing"
	"github.com/larrybwosi/workspace-sub003/internal/signature"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"github.com/oklog/ulid/v2"
	"github.com/slack-go/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	HeaderSignature            = "X-Webhook-Signature"
	HeaderSignatureTimestamped = "X-Webhook-Signature-Timestamped"
	HeaderEvent                = "X-Webhook-Event"
	HeaderDelivery             = "X-Webhook-Delivery"
	HeaderTimestamp            = "X-Webhook-Timestamp"
)

type DispatcherParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       webhookdomain.Repository
	Clock      clock.Clock
	Config     config.Config
	Policy     *config.DeliveryPolicyHolder
	Workspaces workspacedomain.Service
	AuditSvc   auditdomain.Service      `optional:"true"`
	Metrics    *metrics.Metrics         `optional:"true"`
	Latency    *metrics.DeliveryLatency `optional:"true"`
	HTTPClient *http.Client             `name:"webhook_http_client" optional:"true"`
}

// Dispatcher delivers events to outbound subscriptions. Each subscriber is
// attempted independently and every attempt is persisted.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       webhookdomain.Repository
	clock      clock.Clock
	policy     *config.DeliveryPolicyHolder
	workspaces workspacedomain.Service
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
	latency    *metrics.DeliveryLatency
	client     *http.Client
	bodyLimit  int64
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	bodyLimit := p.Config.Webhook.ResponseBodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 4096
	}
	return &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("webhook.dispatcher"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		policy:     p.Policy,
		workspaces: p.Workspaces,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
		latency:    p.Latency,
		client:     tracing.WrapHTTPClient(client),
		bodyLimit:  bodyLimit,
	}
}

type outbound struct {
	workspaceID snowflake.ID
	event       string
	envelope    map[string]any
	body        []byte
	sentAt      time.Time
}

// Dispatch never fails the caller. It runs detached from the caller's
// cancellation so a disconnecting client does not abort deliveries.
func (d *Dispatcher) Dispatch(ctx context.Context, workspaceID snowflake.ID, event string, data map[string]any) []webhookdomain.DeliveryResult {
	ctx = context.WithoutCancel(ctx)

	hooks, err := d.repo.ListActiveWebhooks(ctx, d.db, workspaceID)
	if err != nil {
		d.log.Error("failed to load webhook subscriptions", zap.String("workspace_id", workspaceID.String()), zap.Error(err))
		return nil
	}
	channelID := channelFromData(data)
	matched := make([]webhookdomain.Webhook, 0, len(hooks))
	for i := range hooks {
		if hooks[i].Subscribes(event, channelID) {
			matched = append(matched, hooks[i])
		}
	}
	if len(matched) == 0 {
		return nil
	}

	msg, err := d.buildOutbound(ctx, workspaceID, event, data)
	if err != nil {
		d.log.Error("failed to encode webhook envelope", zap.String("event", event), zap.Error(err))
		return nil
	}

	policy := d.policy.Get()
	results := make([]webhookdomain.DeliveryResult, len(matched))
	sem := make(chan struct{}, policy.MaxConcurrency)
	var wg sync.WaitGroup
	for i := range matched {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = d.deliver(ctx, policy, &matched[i], msg)
		}(i)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) buildOutbound(ctx context.Context, workspaceID snowflake.ID, event string, data map[string]any) (*outbound, error) {
	workspaceName := ""
	if ws, err := d.workspaces.GetWorkspace(ctx, workspaceID); err == nil {
		workspaceName = ws.Name
	} else {
		d.log.Warn("workspace lookup failed for webhook envelope", zap.Error(err))
	}

	now := d.clock.Now()
	if data == nil {
		data = map[string]any{}
	}
	envelope := map[string]any{
		"event": event,
		"workspace": map[string]any{
			"id":   workspaceID.String(),
			"name": workspaceName,
		},
		"data":      data,
		"timestamp": now.Format(time.RFC3339),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, err
	}
	// Store the envelope as it went over the wire.
	var stored map[string]any
	if err := json.Unmarshal(body, &stored); err != nil {
		return nil, err
	}
	return &outbound{workspaceID: workspaceID, event: event, envelope: stored, body: body, sentAt: now}, nil
}

func (d *Dispatcher) deliver(ctx context.Context, policy config.DeliveryPolicy, hook *webhookdomain.Webhook, msg *outbound) webhookdomain.DeliveryResult {
	result := webhookdomain.DeliveryResult{
		WebhookID:  hook.ID,
		DeliveryID: ulid.Make().String(),
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, policy.Backoff(attempt)); err != nil {
				result.Err = err
				break
			}
		}
		result.Attempts = attempt

		statusCode, retryable, err := d.attempt(ctx, policy, hook, msg, result.DeliveryID, attempt)
		result.StatusCode = statusCode
		result.Err = err
		if err == nil {
			result.Success = true
			break
		}
		if !retryable {
			break
		}
	}
	if !result.Success && result.Err != nil {
		result.Err = fmt.Errorf("%w: %w", webhookdomain.ErrDeliveryFailed, result.Err)
	}

	if err := d.repo.RecordOutcome(ctx, d.db, hook.ID, result.Success, d.clock.Now()); err != nil {
		d.log.Warn("failed to update webhook counters", zap.String("webhook_id", hook.ID.String()), zap.Error(err))
	}
	d.auditFire(ctx, hook, msg, result)
	return result
}

// attempt performs one POST and persists its delivery row.
func (d *Dispatcher) attempt(ctx context.Context, policy config.DeliveryPolicy, hook *webhookdomain.Webhook, msg *outbound, deliveryID string, attempt int) (int, bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
	defer cancel()

	started := time.Now()
	var (
		statusCode   int
		responseBody string
		err          error
		headers      map[string]any
	)
	if webhookdomain.Format(hook.Format) == webhookdomain.FormatSlack {
		statusCode, err = d.postSlack(attemptCtx, hook, msg)
		headers = map[string]any{"Content-Type": "application/json"}
	} else {
		statusCode, responseBody, headers, err = d.postJSON(attemptCtx, hook, msg, deliveryID)
	}
	elapsed := time.Since(started)

	retryable := false
	if err != nil {
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			retryable = policy.ShouldRetryStatus(statusErr.code)
		} else {
			retryable = true
		}
	}

	status := webhookdomain.StatusSuccess
	if err != nil {
		status = webhookdomain.StatusFailed
	}
	d.latency.Observe(status, hook.Format, elapsed)
	d.metrics.RecordWebhookDelivery(ctx, msg.event, status)

	delivery := &webhookdomain.Delivery{
		ID:          d.genID.Generate(),
		DeliveryID:  deliveryID,
		WorkspaceID: msg.workspaceID,
		WebhookID:   &hook.ID,
		Direction:   string(webhookdomain.DirectionOutbound),
		Event:       msg.event,
		Attempt:     attempt,
		Request: datatypes.JSONMap{
			"url":     hook.URL,
			"format":  hook.Format,
			"headers": headers,
			"body":    msg.envelope,
		},
		Response: datatypes.JSONMap{
			"status": statusCode,
			"body":   responseBody,
		},
		Status:     status,
		DurationMs: elapsed.Milliseconds(),
		CreatedAt:  d.clock.Now(),
	}
	if err != nil {
		message := err.Error()
		delivery.Error = &message
	}
	if insertErr := d.repo.InsertDelivery(ctx, d.db, delivery); insertErr != nil {
		d.log.Warn("failed to record webhook delivery", zap.String("webhook_id", hook.ID.String()), zap.Error(insertErr))
	}

	if err != nil {
		d.log.Info("webhook delivery attempt failed",
			zap.String("webhook_id", hook.ID.String()),
			zap.String("delivery_id", deliveryID),
			zap.Int("attempt", attempt),
			zap.Int("status_code", statusCode),
			zap.Bool("retryable", retryable),
			zap.Error(tracing.SafeError(err)),
		)
	}
	return statusCode, retryable, err
}

type httpStatusError struct {
	code int
}

func (e *httpStatusError) Error() string {
	return "unexpected status " + strconv.Itoa(e.code)
}

func (d *Dispatcher) postJSON(ctx context.Context, hook *webhookdomain.Webhook, msg *outbound, deliveryID string) (int, string, map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(msg.body))
	if err != nil {
		return 0, "", nil, err
	}
	timestamp := strconv.FormatInt(msg.sentAt.Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature.Header(signature.Sign(hook.Secret, msg.body)))
	req.Header.Set(HeaderSignatureTimestamped, signature.Header(signature.SignTimestamped(hook.Secret, msg.body, msg.sentAt)))
	req.Header.Set(HeaderEvent, msg.event)
	req.Header.Set(HeaderDelivery, deliveryID)
	req.Header.Set(HeaderTimestamp, timestamp)
	headers := map[string]any{
		"Content-Type":  "application/json",
		HeaderEvent:     msg.event,
		HeaderDelivery:  deliveryID,
		HeaderTimestamp: timestamp,
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", headers, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, d.bodyLimit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, string(body), headers, &httpStatusError{code: resp.StatusCode}
	}
	return resp.StatusCode, string(body), headers, nil
}

func (d *Dispatcher) postSlack(ctx context.Context, hook *webhookdomain.Webhook, msg *outbound) (int, error) {
	err := slack.PostWebhookCustomHTTPContext(ctx, hook.URL, d.client, slackMessage(msg))
	if err == nil {
		return http.StatusOK, nil
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.Code, &httpStatusError{code: statusErr.Code}
	}
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return http.StatusTooManyRequests, &httpStatusError{code: http.StatusTooManyRequests}
	}
	return 0, err
}

func slackMessage(msg *outbound) *slack.WebhookMessage {
	workspaceName := ""
	if ws, ok := msg.envelope["workspace"].(map[string]any); ok {
		workspaceName, _ = ws["name"].(string)
	}
	text := fmt.Sprintf("*%s*", msg.event)
	if workspaceName != "" {
		text = fmt.Sprintf("*%s* in %s", msg.event, workspaceName)
	}

	fields := []slack.AttachmentField{}
	if data, ok := msg.envelope["data"].(map[string]any); ok {
		if content, ok := data["content"].(string); ok && content != "" {
			fields = append(fields, slack.AttachmentField{Title: "Content", Value: content})
		}
		if channel, ok := data["channelId"].(string); ok && channel != "" {
			fields = append(fields, slack.AttachmentField{Title: "Channel", Value: channel, Short: true})
		}
	}
	return &slack.WebhookMessage{
		Text: text,
		Attachments: []slack.Attachment{{
			Fallback: text,
			Fields:   fields,
			Ts:       json.Number(strconv.FormatInt(msg.sentAt.Unix(), 10)),
		}},
	}
}

func (d *Dispatcher) auditFire(ctx context.Context, hook *webhookdomain.Webhook, msg *outbound, result webhookdomain.DeliveryResult) {
	if d.auditSvc == nil {
		return
	}
	resourceID := hook.ID.String()
	metadata := map[string]any{
		"event":       msg.event,
		"delivery_id": result.DeliveryID,
		"attempts":    result.Attempts,
		"status_code": result.StatusCode,
		"success":     result.Success,
	}
	if result.Err != nil {
		metadata["error"] = tracing.SafeError(result.Err).Error()
	}
	workspaceID := msg.workspaceID
	if err := d.auditSvc.Append(ctx, auditdomain.Entry{
		WorkspaceID: &workspaceID,
		ActorType:   auditdomain.ActorTypeSystem,
		Action:      "webhook.fire",
		Resource:    "webhook",
		ResourceID:  &resourceID,
		Metadata:    metadata,
	}); err != nil {
		d.log.Warn("audit append failed", zap.String("action", "webhook.fire"), zap.Error(err))
	}
}

func channelFromData(data map[string]any) *snowflake.ID {
	if data == nil {
		return nil
	}
	switch value := data["channelId"].(type) {
	case snowflake.ID:
		return &value
	case string:
		id, err := snowflake.ParseString(value)
		if err != nil {
			return nil
		}
		return &id
	default:
		return nil
	}
}

func sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
