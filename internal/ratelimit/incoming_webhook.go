package ratelimit

import (
	"context"
	"strings"

	"github.com/larrybwosi/workspace-sub003/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const incomingWebhookPrefix = "workspace:ratelimit:incoming:"

// IncomingWebhookLimiter bounds the request burst per inbound credential.
// Without redis it admits everything.
type IncomingWebhookLimiter struct {
	bucket    *bucket
	perSecond float64
	capacity  int
	log       *zap.Logger
}

func NewIncomingWebhookLimiter(cfg config.Config, client *redis.Client, log *zap.Logger) *IncomingWebhookLimiter {
	limiter := &IncomingWebhookLimiter{
		perSecond: cfg.RateLimit.IncomingWebhookRate,
		capacity:  cfg.RateLimit.IncomingWebhookBurst,
		log:       log.Named("ratelimit.incoming_webhook"),
	}
	if cfg.RateLimit.Enabled && client != nil && limiter.perSecond > 0 && limiter.capacity > 0 {
		limiter.bucket = newBucket(client, incomingWebhookPrefix)
	}
	return limiter
}

func (l *IncomingWebhookLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow takes one token for the credential key. Redis errors fail open.
func (l *IncomingWebhookLimiter) Allow(ctx context.Context, credentialKey string) Decision {
	if !l.Enabled() {
		return Decision{Allowed: true}
	}
	decision, err := l.bucket.take(ctx, strings.TrimSpace(credentialKey), l.perSecond, l.capacity)
	if err != nil {
		l.log.Warn("incoming webhook rate limiter unavailable", zap.Error(err))
		return Decision{Allowed: true, Limit: l.capacity}
	}
	return decision
}
