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
	"github.com/larrybwosi/workspace-sub003/internal/notification"
	"github.com/larrybwosi/workspace-sub003/internal/observability"
	"github.com/larrybwosi/workspace-sub003/internal/server"
	"github.com/larrybwosi/workspace-sub003/internal/webhook"
	"github.com/larrybwosi/workspace-sub003/internal/workspace"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/larrybwosi/workspace-sub003/pkg/redisconn"
	"go.uber.org/fx"
)

// The realtime gateway authenticates subscribers against the shared database
// and relays events published by API replicas through redis.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redisconn.Module,
		fanout.Module,
		fanout.RelayModule,

		audit.Module,
		identity.Module,
		workspace.Module,
		access.Module,
		apitoken.Module,
		gateway.Module,
		notification.Module,
		webhook.Module,
		message.Module,

		server.RealtimeModule,
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
