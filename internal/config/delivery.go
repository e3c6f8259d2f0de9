package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DeliveryPolicy controls outbound webhook delivery attempts.
type DeliveryPolicy struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	InitialBackoff  time.Duration `mapstructure:"initialBackoff"`
	MaxBackoff      time.Duration `mapstructure:"maxBackoff"`
	MaxConcurrency  int           `mapstructure:"maxConcurrency"`
	RetryOnStatuses []int         `mapstructure:"retryOnStatuses"`
}

func DefaultDeliveryPolicy(cfg WebhookConfig) DeliveryPolicy {
	policy := DeliveryPolicy{
		Timeout:         cfg.Timeout,
		MaxAttempts:     cfg.MaxAttempts,
		InitialBackoff:  cfg.InitialBackoff,
		MaxBackoff:      2 * time.Second,
		MaxConcurrency:  cfg.MaxConcurrency,
		RetryOnStatuses: []int{408, 425, 429, 500, 502, 503, 504},
	}
	if policy.Timeout <= 0 {
		policy.Timeout = 5 * time.Second
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = 250 * time.Millisecond
	}
	if policy.MaxConcurrency <= 0 {
		policy.MaxConcurrency = 4
	}
	return policy
}

// ShouldRetryStatus reports whether an HTTP status is worth another attempt.
func (p DeliveryPolicy) ShouldRetryStatus(status int) bool {
	for _, candidate := range p.RetryOnStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

// Backoff returns the wait before the given attempt (attempt 2 is the first retry).
func (p DeliveryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	wait := p.InitialBackoff
	for i := 2; i < attempt; i++ {
		wait *= 2
		if p.MaxBackoff > 0 && wait >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return wait
}

type DeliveryPolicyHolder struct {
	current atomic.Value // holds DeliveryPolicy
}

// NewStaticDeliveryPolicyHolder returns a holder that never reloads.
func NewStaticDeliveryPolicyHolder(policy DeliveryPolicy) *DeliveryPolicyHolder {
	holder := &DeliveryPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

// NewDeliveryPolicyHolder reads webhook.yml when present and keeps it in sync.
func NewDeliveryPolicyHolder(cfg Config, log *zap.Logger) (*DeliveryPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.webhook")

	defaults := DefaultDeliveryPolicy(cfg.Webhook)

	v := viper.New()
	v.SetConfigName("webhook")
	v.SetConfigType("yml")
	for _, path := range cfg.Webhook.PolicyPaths {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("WORKSPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("delivery.timeout", defaults.Timeout)
	v.SetDefault("delivery.maxAttempts", defaults.MaxAttempts)
	v.SetDefault("delivery.initialBackoff", defaults.InitialBackoff)
	v.SetDefault("delivery.maxBackoff", defaults.MaxBackoff)
	v.SetDefault("delivery.maxConcurrency", defaults.MaxConcurrency)
	v.SetDefault("delivery.retryOnStatuses", defaults.RetryOnStatuses)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	var policy DeliveryPolicy
	if err := v.UnmarshalKey("delivery", &policy); err != nil {
		return nil, err
	}
	policy = withDeliveryDefaults(policy, defaults)
	if err := validateDeliveryPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticDeliveryPolicyHolder(policy)
	if !fileFound {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated DeliveryPolicy
		if err := v.UnmarshalKey("delivery", &updated); err != nil {
			log.Warn("webhook policy reload failed", zap.Error(err))
			return
		}
		updated = withDeliveryDefaults(updated, defaults)
		if err := validateDeliveryPolicy(updated); err != nil {
			log.Warn("invalid webhook policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("webhook policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *DeliveryPolicyHolder) Get() DeliveryPolicy {
	return h.current.Load().(DeliveryPolicy)
}

func withDeliveryDefaults(p DeliveryPolicy, defaults DeliveryPolicy) DeliveryPolicy {
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaults.MaxBackoff
	}
	if len(p.RetryOnStatuses) == 0 {
		p.RetryOnStatuses = defaults.RetryOnStatuses
	}
	return p
}

func validateDeliveryPolicy(p DeliveryPolicy) error {
	if p.Timeout <= 0 || p.Timeout > time.Minute {
		return errors.New("delivery.timeout must be between 0 and 1m")
	}
	if p.MaxAttempts < 1 || p.MaxAttempts > 10 {
		return errors.New("delivery.maxAttempts must be between 1 and 10")
	}
	if p.InitialBackoff < 0 {
		return errors.New("delivery.initialBackoff cannot be negative")
	}
	if p.MaxConcurrency < 1 {
		return errors.New("delivery.maxConcurrency must be positive")
	}
	return nil
}
