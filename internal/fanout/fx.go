package fanout

import (
	"github.com/larrybwosi/workspace-sub003/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("fanout",
	fx.Provide(newHub),
	fx.Provide(newPublisher),
)

// RelayModule attaches the redis relay to the local hub. Processes that serve
// realtime clients include it.
var RelayModule = fx.Module("fanout.relay",
	fx.Invoke(registerRelay),
)

func newHub(cfg config.Config) *Hub {
	return NewHub(cfg.Realtime.BufferSize, cfg.Realtime.SubscriberBuffer)
}

func newPublisher(client *redis.Client, hub *Hub) Publisher {
	if client == nil {
		return hub
	}
	return NewRedisPublisher(client)
}

func registerRelay(lc fx.Lifecycle, client *redis.Client, hub *Hub, log *zap.Logger) {
	if client == nil {
		return
	}
	relay := NewRedisRelay(client, hub, log)
	lc.Append(fx.Hook{
		OnStart: relay.Start,
		OnStop:  relay.Stop,
	})
}
