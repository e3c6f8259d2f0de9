package notification

import (
	"github.com/larrybwosi/workspace-sub003/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(service.New),
)
