package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/larrybwosi/workspace-sub003/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeReplyAdmitted(t *testing.T) {
	decision, err := decodeReply([]interface{}{int64(1), int64(4500), int64(0)}, 5)
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
	assert.Equal(t, 5, decision.Limit)
	assert.Zero(t, decision.RetryAfter)
}

func TestDecodeReplyDeniedCarriesWait(t *testing.T) {
	decision, err := decodeReply([]interface{}{int64(0), int64(500), int64(250)}, 5)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Zero(t, decision.Remaining)
	assert.Equal(t, 250*time.Millisecond, decision.RetryAfter)
}

func TestDecodeReplyRejectsMalformed(t *testing.T) {
	_, err := decodeReply([]interface{}{int64(1)}, 1)
	assert.Error(t, err)

	_, err = decodeReply([]interface{}{int64(1), 1.5, int64(0)}, 1)
	assert.Error(t, err)
}

func TestIncomingWebhookLimiterWithoutRedisAdmits(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, IncomingWebhookRate: 1, IncomingWebhookBurst: 1}}
	limiter := NewIncomingWebhookLimiter(cfg, nil, zap.NewNop())

	assert.False(t, limiter.Enabled())
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(context.Background(), "token:abc").Allowed)
	}
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, bucketTTL(2, 10))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 1))
}

func TestLockerWithoutClient(t *testing.T) {
	locker := NewLocker(nil)
	called := false
	ran, err := locker.RunExclusive(context.Background(), "seed", time.Second, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, ran)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.False(t, called)
}
