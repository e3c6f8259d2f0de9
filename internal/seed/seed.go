package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	"github.com/larrybwosi/workspace-sub003/internal/ratelimit"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	demoHandle        = "demo"
	demoDisplayName   = "Demo Admin"
	demoEmail         = "demo@workspace.local"
	demoWorkspaceName = "Demo"
	demoWorkspaceSlug = "demo"
	demoChannelName   = "general"

	lockKey = "seed:demo"
	lockTTL = 30 * time.Second
)

// Demo identifies the bootstrapped records.
type Demo struct {
	UserID      snowflake.ID
	WorkspaceID snowflake.ID
	ChannelID   snowflake.ID
}

// EnsureDemoWorkspace creates a demo user, workspace and public channel
// unless they exist. With a locker only one replica seeds at a time; a
// replica that loses the lock returns nil.
func EnsureDemoWorkspace(ctx context.Context, db *gorm.DB, node *snowflake.Node, locker *ratelimit.Locker) (*Demo, error) {
	if db == nil {
		return nil, errors.New("seed database handle is required")
	}
	if node == nil {
		return nil, errors.New("seed id generator is required")
	}

	var demo *Demo
	seedFn := func(ctx context.Context) error {
		var err error
		demo, err = seedDemo(ctx, db, node)
		return err
	}
	if locker == nil {
		if err := seedFn(ctx); err != nil {
			return nil, err
		}
		return demo, nil
	}
	if _, err := locker.RunExclusive(ctx, lockKey, lockTTL, seedFn); err != nil {
		return nil, err
	}
	return demo, nil
}

func seedDemo(ctx context.Context, db *gorm.DB, node *snowflake.Node) (*Demo, error) {
	var demo Demo
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := ensureUserTx(ctx, tx, node)
		if err != nil {
			return err
		}
		ws, err := ensureWorkspaceTx(ctx, tx, node, user.ID)
		if err != nil {
			return err
		}
		if err := ensureOwnerTx(ctx, tx, node, ws.ID, user.ID); err != nil {
			return err
		}
		channel, err := ensureChannelTx(ctx, tx, node, ws.ID, user.ID)
		if err != nil {
			return err
		}
		demo = Demo{UserID: user.ID, WorkspaceID: ws.ID, ChannelID: channel.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &demo, nil
}

func ensureUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (identitydomain.User, error) {
	var user identitydomain.User
	err := tx.WithContext(ctx).Where("handle = ?", demoHandle).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}
	user = identitydomain.User{
		ID:          node.Generate(),
		Handle:      demoHandle,
		DisplayName: demoDisplayName,
		Email:       demoEmail,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return user, err
	}
	return user, nil
}

func ensureWorkspaceTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, ownerID snowflake.ID) (workspacedomain.Workspace, error) {
	var ws workspacedomain.Workspace
	err := tx.WithContext(ctx).Where("slug = ?", demoWorkspaceSlug).First(&ws).Error
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ws, err
	}
	now := time.Now().UTC()
	ws = workspacedomain.Workspace{
		ID:        node.Generate(),
		Name:      demoWorkspaceName,
		Slug:      demoWorkspaceSlug,
		Plan:      "free",
		CreatedBy: ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&ws).Error; err != nil {
		return ws, err
	}
	return ws, nil
}

func ensureOwnerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, workspaceID, userID snowflake.ID) error {
	member := workspacedomain.Member{
		ID:          node.Generate(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        string(workspacedomain.RoleOwner),
		CreatedAt:   time.Now().UTC(),
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&member).Error
}

func ensureChannelTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, workspaceID, creatorID snowflake.ID) (workspacedomain.Channel, error) {
	var channel workspacedomain.Channel
	err := tx.WithContext(ctx).Where("workspace_id = ? AND name = ?", workspaceID, demoChannelName).First(&channel).Error
	if err == nil {
		return channel, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return channel, err
	}
	channel = workspacedomain.Channel{
		ID:          node.Generate(),
		WorkspaceID: workspaceID,
		Name:        demoChannelName,
		Description: "Company wide announcements",
		CreatedBy:   &creatorID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&channel).Error; err != nil {
		return channel, err
	}
	return channel, nil
}
