package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/access"
	"github.com/larrybwosi/workspace-sub003/internal/apitoken"
	"github.com/larrybwosi/workspace-sub003/internal/audit"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/internal/config"
	"github.com/larrybwosi/workspace-sub003/internal/fanout"
	"github.com/larrybwosi/workspace-sub003/internal/gateway"
	"github.com/larrybwosi/workspace-sub003/internal/identity"
	"github.com/larrybwosi/workspace-sub003/internal/message"
	"github.com/larrybwosi/workspace-sub003/internal/migration"
	"github.com/larrybwosi/workspace-sub003/internal/notification"
	"github.com/larrybwosi/workspace-sub003/internal/observability"
	"github.com/larrybwosi/workspace-sub003/internal/ratelimit"
	"github.com/larrybwosi/workspace-sub003/internal/server"
	"github.com/larrybwosi/workspace-sub003/internal/webhook"
	"github.com/larrybwosi/workspace-sub003/internal/webhook/inbound"
	"github.com/larrybwosi/workspace-sub003/internal/workspace"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/larrybwosi/workspace-sub003/pkg/redisconn"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisconn.Module,
		ratelimit.Module,
		fanout.Module,
		fanout.RelayModule,
		migration.Module,

		// Functional Domains
		audit.Module,
		identity.Module,
		workspace.Module,
		access.Module,
		apitoken.Module,
		gateway.Module,
		notification.Module,
		webhook.Module,
		inbound.Module,
		message.Module,

		// API and realtime share one listener.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
