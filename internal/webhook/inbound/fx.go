package inbound

import "go.uber.org/fx"

var Module = fx.Module("webhook.inbound",
	fx.Provide(NewValidator),
	fx.Provide(New),
)
