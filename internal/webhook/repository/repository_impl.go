package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() webhookdomain.Repository {
	return &repo{}
}

const webhookColumns = `id, workspace_id, channel_id, name, url, secret, events, format, is_active,
	delivery_count, success_count, last_triggered_at, created_by, created_at, updated_at`

const incomingColumns = `id, workspace_id, channel_id, name, token, secret, is_active, last_used_at, created_by, created_at`

const deliveryColumns = `id, delivery_id, workspace_id, webhook_id, incoming_webhook_id, direction, event, attempt,
	request, response, status, error, duration_ms, created_at`

func (r *repo) InsertWebhook(ctx context.Context, db *gorm.DB, hook *webhookdomain.Webhook) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhooks (`+webhookColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hook.ID,
		hook.WorkspaceID,
		hook.ChannelID,
		hook.Name,
		hook.URL,
		hook.Secret,
		hook.Events,
		hook.Format,
		hook.IsActive,
		hook.DeliveryCount,
		hook.SuccessCount,
		hook.LastTriggeredAt,
		hook.CreatedBy,
		hook.CreatedAt,
		hook.UpdatedAt,
	).Error
}

func (r *repo) FindWebhook(ctx context.Context, db *gorm.DB, id snowflake.ID) (*webhookdomain.Webhook, error) {
	var hook webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`,
		id,
	).Scan(&hook).Error
	if err != nil {
		return nil, err
	}
	if hook.ID == 0 {
		return nil, nil
	}
	return &hook, nil
}

func (r *repo) ListWebhooks(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]webhookdomain.Webhook, error) {
	var hooks []webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT `+webhookColumns+` FROM webhooks WHERE workspace_id = ? ORDER BY id DESC`,
		workspaceID,
	).Scan(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func (r *repo) ListActiveWebhooks(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]webhookdomain.Webhook, error) {
	var hooks []webhookdomain.Webhook
	err := db.WithContext(ctx).Raw(
		`SELECT `+webhookColumns+` FROM webhooks WHERE workspace_id = ? AND is_active = ? ORDER BY id ASC`,
		workspaceID, true,
	).Scan(&hooks).Error
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func (r *repo) DeactivateWebhook(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhooks SET is_active = ?, updated_at = ? WHERE id = ?`,
		false, at, id,
	).Error
}

func (r *repo) RecordOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, success bool, at time.Time) error {
	successIncrement := 0
	if success {
		successIncrement = 1
	}
	return db.WithContext(ctx).Exec(
		`UPDATE webhooks
		 SET delivery_count = delivery_count + 1, success_count = success_count + ?, last_triggered_at = ?, updated_at = ?
		 WHERE id = ?`,
		successIncrement, at, at, id,
	).Error
}

func (r *repo) InsertIncoming(ctx context.Context, db *gorm.DB, hook *webhookdomain.IncomingWebhook) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO incoming_webhooks (`+incomingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hook.ID,
		hook.WorkspaceID,
		hook.ChannelID,
		hook.Name,
		hook.Token,
		hook.Secret,
		hook.IsActive,
		hook.LastUsedAt,
		hook.CreatedBy,
		hook.CreatedAt,
	).Error
}

func (r *repo) FindIncoming(ctx context.Context, db *gorm.DB, id snowflake.ID) (*webhookdomain.IncomingWebhook, error) {
	var hook webhookdomain.IncomingWebhook
	err := db.WithContext(ctx).Raw(
		`SELECT `+incomingColumns+` FROM incoming_webhooks WHERE id = ?`,
		id,
	).Scan(&hook).Error
	if err != nil {
		return nil, err
	}
	if hook.ID == 0 {
		return nil, nil
	}
	return &hook, nil
}

func (r *repo) FindIncomingByToken(ctx context.Context, db *gorm.DB, token string) (*webhookdomain.IncomingWebhook, error) {
	var hook webhookdomain.IncomingWebhook
	err := db.WithContext(ctx).Raw(
		`SELECT `+incomingColumns+` FROM incoming_webhooks WHERE token = ?`,
		token,
	).Scan(&hook).Error
	if err != nil {
		return nil, err
	}
	if hook.ID == 0 {
		return nil, nil
	}
	return &hook, nil
}

func (r *repo) TouchIncoming(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE incoming_webhooks SET last_used_at = ? WHERE id = ?`,
		at, id,
	).Error
}

func (r *repo) InsertDelivery(ctx context.Context, db *gorm.DB, delivery *webhookdomain.Delivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_deliveries (`+deliveryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		delivery.ID,
		delivery.DeliveryID,
		delivery.WorkspaceID,
		delivery.WebhookID,
		delivery.IncomingWebhookID,
		delivery.Direction,
		delivery.Event,
		delivery.Attempt,
		delivery.Request,
		delivery.Response,
		delivery.Status,
		delivery.Error,
		delivery.DurationMs,
		delivery.CreatedAt,
	).Error
}

func (r *repo) ListDeliveries(ctx context.Context, db *gorm.DB, webhookID snowflake.ID, beforeID snowflake.ID, limit int) ([]*webhookdomain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE webhook_id = ?`
	args := []any{webhookID}
	if beforeID != 0 {
		query += ` AND id < ?`
		args = append(args, beforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var deliveries []*webhookdomain.Delivery
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&deliveries).Error; err != nil {
		return nil, err
	}
	return deliveries, nil
}
