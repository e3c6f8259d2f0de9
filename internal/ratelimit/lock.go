package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

const lockPrefix = "workspace:lock:"

// unlockScript deletes the key only while it still holds our owner id.
const unlockScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

var ErrLockUnavailable = errors.New("lock client not configured")

// Locker is a single-holder redis lease shared by every replica.
type Locker struct {
	client *redis.Client
	unlock *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, unlock: redis.NewScript(unlockScript)}
}

// RunExclusive runs fn while holding name for at most ttl. It reports false
// without calling fn when another replica holds the lease.
func (l *Locker) RunExclusive(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	if l == nil || l.client == nil {
		return false, ErrLockUnavailable
	}
	if name == "" || ttl <= 0 {
		return false, errors.New("lock name and ttl are required")
	}

	owner := ulid.Make().String()
	key := lockPrefix + name
	acquired, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil || !acquired {
		return false, err
	}
	defer func() {
		_ = l.unlock.Run(context.WithoutCancel(ctx), l.client, []string{key}, owner).Err()
	}()

	return true, fn(ctx)
}
