package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens are stored in thousandths so the script never returns a float.
const millis = 1000

// refillScript takes one token from KEYS[1]. ARGV: refill per second,
// capacity, key ttl in ms. Replies {admitted, remaining milli-tokens, wait ms}.
const refillScript = `
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "m", "at")
local level = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now
if now > at then
  level = math.min(capacity, level + math.floor((now - at) * refill))
end

local admitted = 0
local wait = 0
if level >= 1000 then
  admitted = 1
  level = level - 1000
else
  wait = math.ceil((1000 - level) / refill)
end

redis.call("HSET", KEYS[1], "m", level, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {admitted, level, wait}
`

// Decision is the outcome of one inbound request against its bucket.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

func newBucket(client *redis.Client, prefix string) *bucket {
	return &bucket{
		client: client,
		script: redis.NewScript(refillScript),
		prefix: prefix,
	}
}

func (b *bucket) take(ctx context.Context, key string, perSecond float64, capacity int) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("bucket key is empty")
	}
	if perSecond <= 0 || capacity <= 0 {
		return Decision{}, fmt.Errorf("invalid bucket shape %.2f/%d", perSecond, capacity)
	}

	// The script refills in milli-tokens per millisecond, which equals tokens per second.
	reply, err := b.script.Run(ctx, b.client,
		[]string{b.prefix + key},
		perSecond,
		capacity,
		bucketTTL(perSecond, capacity).Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, err
	}
	return decodeReply(reply, capacity)
}

func decodeReply(reply []interface{}, capacity int) (Decision, error) {
	if len(reply) != 3 {
		return Decision{}, fmt.Errorf("bucket reply has %d fields", len(reply))
	}
	admitted, err := replyInt(reply[0])
	if err != nil {
		return Decision{}, err
	}
	level, err := replyInt(reply[1])
	if err != nil {
		return Decision{}, err
	}
	wait, err := replyInt(reply[2])
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:    admitted == 1,
		Limit:      capacity,
		Remaining:  int(level / millis),
		RetryAfter: time.Duration(wait) * time.Millisecond,
	}, nil
}

// bucketTTL keeps an idle key for twice the time a full refill takes.
func bucketTTL(perSecond float64, capacity int) time.Duration {
	if perSecond <= 0 || capacity <= 0 {
		return time.Second
	}
	return time.Duration(math.Max(1, math.Ceil(2*float64(capacity)/perSecond))) * time.Second
}

func replyInt(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected bucket reply value %T", v)
	}
}
