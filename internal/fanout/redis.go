package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "workspace:realtime:"

// RedisPublisher broadcasts events to every instance through redis PUBLISH.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic, event string, payload any) error {
	if p == nil || p.client == nil {
		return errors.New("redis publisher not configured")
	}
	evt, err := NewEvent(topic, event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, redisChannelPrefix+evt.Topic, data).Err()
}

// RedisRelay feeds the local hub from the redis bus so each instance serves
// its own websocket and SSE clients.
type RedisRelay struct {
	client *redis.Client
	hub    *Hub
	log    *zap.Logger

	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisRelay(client *redis.Client, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client: client,
		hub:    hub,
		log:    log.Named("fanout.relay"),
	}
}

func (r *RedisRelay) Start(ctx context.Context) error {
	r.pubsub = r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return err
	}
	r.done = make(chan struct{})
	go r.run(r.pubsub.Channel())
	r.log.Info("realtime relay subscribed", zap.String("pattern", redisChannelPrefix+"*"))
	return nil
}

func (r *RedisRelay) run(messages <-chan *redis.Message) {
	defer close(r.done)
	for msg := range messages {
		event, err := decodeRelayed(msg)
		if err != nil {
			r.log.Warn("dropping malformed realtime message", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		r.hub.Deliver(event)
	}
}

func (r *RedisRelay) Stop(context.Context) error {
	if r.pubsub == nil {
		return nil
	}
	err := r.pubsub.Close()
	if r.done != nil {
		<-r.done
	}
	return err
}

func decodeRelayed(msg *redis.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		return Event{}, err
	}
	if event.Topic == "" {
		event.Topic = strings.TrimPrefix(msg.Channel, redisChannelPrefix)
	}
	if _, _, err := ParseTopic(event.Topic); err != nil {
		return Event{}, err
	}
	return event, nil
}
