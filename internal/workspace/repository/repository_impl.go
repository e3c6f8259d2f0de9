package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/mention"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() workspacedomain.Repository {
	return &repo{}
}

func (r *repo) InsertWorkspace(ctx context.Context, db *gorm.DB, ws *workspacedomain.Workspace) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO workspaces (id, name, slug, plan, security_policy, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.Name, ws.Slug, ws.Plan, ws.SecurityPolicy, ws.CreatedBy, ws.CreatedAt, ws.UpdatedAt,
	).Error
}

func (r *repo) FindWorkspace(ctx context.Context, db *gorm.DB, id snowflake.ID) (*workspacedomain.Workspace, error) {
	var ws workspacedomain.Workspace
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, plan, security_policy, created_by, created_at, updated_at
		 FROM workspaces WHERE id = ?`, id,
	).Scan(&ws).Error
	if err != nil {
		return nil, err
	}
	if ws.ID == 0 {
		return nil, nil
	}
	return &ws, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM workspaces WHERE slug = ?`, slug).Scan(&count).Error
	return count > 0, err
}

// DeleteWorkspace removes the workspace row. Owned rows cascade through
// foreign keys in the postgres schema.
func (r *repo) DeleteWorkspace(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM workspaces WHERE id = ?`, id).Error
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, member *workspacedomain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO workspace_members (id, workspace_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		member.ID, member.WorkspaceID, member.UserID, member.Role, member.CreatedAt,
	).Error
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, workspaceID, userID snowflake.ID) (*workspacedomain.Member, error) {
	var member workspacedomain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, workspace_id, user_id, role, created_at
		 FROM workspace_members WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID,
	).Scan(&member).Error
	if err != nil {
		return nil, err
	}
	if member.ID == 0 {
		return nil, nil
	}
	return &member, nil
}

func (r *repo) ListDirectory(ctx context.Context, db *gorm.DB, workspaceID snowflake.ID) ([]mention.Member, error) {
	var rows []struct {
		UserID      snowflake.ID `gorm:"column:user_id"`
		Handle      string       `gorm:"column:handle"`
		DisplayName string       `gorm:"column:display_name"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT u.id AS user_id, u.handle, u.display_name
		 FROM workspace_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.workspace_id = ?
		 ORDER BY u.id`,
		workspaceID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	members := make([]mention.Member, 0, len(rows))
	for _, row := range rows {
		members = append(members, mention.Member{
			UserID:      row.UserID,
			Handle:      row.Handle,
			DisplayName: row.DisplayName,
		})
	}
	return members, nil
}

func (r *repo) InsertDepartment(ctx context.Context, db *gorm.DB, dept *workspacedomain.Department) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO departments (id, workspace_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		dept.ID, dept.WorkspaceID, dept.Name, dept.Description, dept.CreatedAt,
	).Error
}

func (r *repo) FindDepartment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*workspacedomain.Department, error) {
	var dept workspacedomain.Department
	err := db.WithContext(ctx).Raw(
		`SELECT id, workspace_id, name, description, created_at FROM departments WHERE id = ?`, id,
	).Scan(&dept).Error
	if err != nil {
		return nil, err
	}
	if dept.ID == 0 {
		return nil, nil
	}
	return &dept, nil
}

func (r *repo) InsertChannel(ctx context.Context, db *gorm.DB, channel *workspacedomain.Channel) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO channels (id, workspace_id, department_id, name, description, is_private, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		channel.ID, channel.WorkspaceID, channel.DepartmentID, channel.Name, channel.Description,
		channel.IsPrivate, channel.CreatedBy, channel.CreatedAt,
	).Error
}

func (r *repo) FindChannel(ctx context.Context, db *gorm.DB, id snowflake.ID) (*workspacedomain.Channel, error) {
	var channel workspacedomain.Channel
	err := db.WithContext(ctx).Raw(
		`SELECT id, workspace_id, department_id, name, description, is_private, created_by, created_at
		 FROM channels WHERE id = ?`, id,
	).Scan(&channel).Error
	if err != nil {
		return nil, err
	}
	if channel.ID == 0 {
		return nil, nil
	}
	return &channel, nil
}

func (r *repo) InsertChannelMember(ctx context.Context, db *gorm.DB, member *workspacedomain.ChannelMember) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO channel_members (id, channel_id, user_id, created_at) VALUES (?, ?, ?, ?)`,
		member.ID, member.ChannelID, member.UserID, member.CreatedAt,
	).Error
}

func (r *repo) IsChannelMember(ctx context.Context, db *gorm.DB, channelID, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM channel_members WHERE channel_id = ? AND user_id = ?`,
		channelID, userID,
	).Scan(&count).Error
	return count > 0, err
}
