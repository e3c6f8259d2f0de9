package webhook

import (
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/repository"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		fx.Annotate(service.NewDispatcher, fx.As(new(webhookdomain.Dispatcher))),
	),
)
