package identity

import (
	"github.com/larrybwosi/workspace-sub003/internal/identity/repository"
	"github.com/larrybwosi/workspace-sub003/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
