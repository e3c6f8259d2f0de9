package message

import (
	"github.com/larrybwosi/workspace-sub003/internal/message/repository"
	"github.com/larrybwosi/workspace-sub003/internal/message/service"
	"go.uber.org/fx"
)

var Module = fx.Module("message.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
