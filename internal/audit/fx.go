package audit

import (
	"github.com/larrybwosi/workspace-sub003/internal/audit/repository"
	"github.com/larrybwosi/workspace-sub003/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
