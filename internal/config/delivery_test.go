package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDeliveryPolicyBackoffDoublesUpToMax(t *testing.T) {
	policy := DeliveryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 350 * time.Millisecond}

	assert.Equal(t, time.Duration(0), policy.Backoff(1))
	assert.Equal(t, 100*time.Millisecond, policy.Backoff(2))
	assert.Equal(t, 200*time.Millisecond, policy.Backoff(3))
	assert.Equal(t, 350*time.Millisecond, policy.Backoff(4))
	assert.Equal(t, 350*time.Millisecond, policy.Backoff(8))
}

func TestDefaultDeliveryPolicyFillsZeroValues(t *testing.T) {
	policy := DefaultDeliveryPolicy(WebhookConfig{})

	assert.Equal(t, 5*time.Second, policy.Timeout)
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 4, policy.MaxConcurrency)
	assert.True(t, policy.ShouldRetryStatus(503))
	assert.True(t, policy.ShouldRetryStatus(429))
	assert.False(t, policy.ShouldRetryStatus(400))
}

func TestNewDeliveryPolicyHolderWithoutFileUsesEnvDefaults(t *testing.T) {
	cfg := Config{Webhook: WebhookConfig{
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: 10 * time.Millisecond,
		MaxConcurrency: 3,
		PolicyPaths:    []string{t.TempDir()},
	}}

	holder, err := NewDeliveryPolicyHolder(cfg, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 2*time.Second, policy.Timeout)
	assert.Equal(t, 2, policy.MaxAttempts)
	assert.Equal(t, 3, policy.MaxConcurrency)
}

func TestNewDeliveryPolicyHolderReadsPolicyFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("delivery:\n  timeout: 3s\n  maxAttempts: 5\n  initialBackoff: 50ms\n  maxConcurrency: 8\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webhook.yml"), content, 0o600))

	holder, err := NewDeliveryPolicyHolder(Config{Webhook: WebhookConfig{PolicyPaths: []string{dir}}}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 3*time.Second, policy.Timeout)
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, 8, policy.MaxConcurrency)
}

func TestNewDeliveryPolicyHolderRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("delivery:\n  timeout: 3s\n  maxAttempts: 0\n  maxConcurrency: 1\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webhook.yml"), content, 0o600))

	_, err := NewDeliveryPolicyHolder(Config{Webhook: WebhookConfig{PolicyPaths: []string{dir}}}, zap.NewNop())
	assert.Error(t, err)
}
