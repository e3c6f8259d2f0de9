package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	messagedomain "github.com/larrybwosi/workspace-sub003/internal/message/domain"
	notificationdomain "github.com/larrybwosi/workspace-sub003/internal/notification/domain"
	webhookdomain "github.com/larrybwosi/workspace-sub003/internal/webhook/domain"
	workspacedomain "github.com/larrybwosi/workspace-sub003/internal/workspace/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every table for dialects the SQL migrations do not target.
func Models() []any {
	return []any{
		&identitydomain.User{},
		&identitydomain.Session{},
		&workspacedomain.Workspace{},
		&workspacedomain.Member{},
		&workspacedomain.Department{},
		&workspacedomain.Channel{},
		&workspacedomain.ChannelMember{},
		&messagedomain.Thread{},
		&messagedomain.Message{},
		&messagedomain.Attachment{},
		&messagedomain.Mention{},
		&messagedomain.Reaction{},
		&notificationdomain.Notification{},
		&apitokendomain.WorkspaceToken{},
		&apitokendomain.PersonalKey{},
		&webhookdomain.Webhook{},
		&webhookdomain.IncomingWebhook{},
		&webhookdomain.Delivery{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate creates the schema from the models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
