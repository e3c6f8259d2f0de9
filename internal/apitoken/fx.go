package apitoken

import (
	"github.com/larrybwosi/workspace-sub003/internal/apitoken/repository"
	"github.com/larrybwosi/workspace-sub003/internal/apitoken/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apitoken.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
