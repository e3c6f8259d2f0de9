package gateway

import (
	"github.com/larrybwosi/workspace-sub003/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(service.New),
)
