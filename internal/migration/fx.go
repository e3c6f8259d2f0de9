package migration

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/config"
	"github.com/larrybwosi/workspace-sub003/internal/ratelimit"
	"github.com/larrybwosi/workspace-sub003/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type params struct {
	fx.In

	DB     *gorm.DB
	Config config.Config
	Log    *zap.Logger
	GenID  *snowflake.Node
	Locker *ratelimit.Locker `optional:"true"`
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p params) error {
		if strings.EqualFold(p.Config.DBType, "postgres") {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else if err := AutoMigrate(p.DB); err != nil {
			return err
		}

		if !p.Config.Bootstrap.Demo {
			return nil
		}
		demo, err := seed.EnsureDemoWorkspace(context.Background(), p.DB, p.GenID, p.Locker)
		if err != nil {
			return err
		}
		if demo != nil {
			p.Log.Info("demo workspace ready",
				zap.String("workspace_id", demo.WorkspaceID.String()),
				zap.String("channel_id", demo.ChannelID.String()),
			)
		}
		return nil
	}),
)
