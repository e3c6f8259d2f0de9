package workspace

import (
	"github.com/larrybwosi/workspace-sub003/internal/workspace/repository"
	"github.com/larrybwosi/workspace-sub003/internal/workspace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workspace.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
