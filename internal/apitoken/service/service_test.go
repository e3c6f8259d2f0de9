package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apitokendomain "github.com/larrybwosi/workspace-sub003/internal/apitoken/domain"
	"github.com/larrybwosi/workspace-sub003/internal/apitoken/repository"
	auditdomain "github.com/larrybwosi/workspace-sub003/internal/audit/domain"
	auditrepo "github.com/larrybwosi/workspace-sub003/internal/audit/repository"
	auditservice "github.com/larrybwosi/workspace-sub003/internal/audit/service"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (apitokendomain.Service, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest(&apitokendomain.WorkspaceToken{}, &apitokendomain.PersonalKey{}, &auditdomain.AuditLog{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(), Clock: fake})
	svc := New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: fake, AuditSvc: audit})
	return svc, conn, node, fake
}

func TestCreateTokenStoresHashOnly(t *testing.T) {
	svc, conn, node, _ := newTestService(t)
	ctx := context.Background()
	actor := node.Generate()
	workspaceID := node.Generate()

	created, err := svc.CreateToken(ctx, actor, workspaceID, apitokendomain.CreateTokenRequest{
		Name:        "ci bot",
		Permissions: []string{"messages:write", "MESSAGES:WRITE", "messages:read"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.Secret, apitokendomain.TokenPrefix))
	assert.Equal(t, created.Secret[:12], created.Token.TokenPrefix)
	assert.Equal(t, apitokendomain.HashSecret(created.Secret), created.Token.TokenHash)
	assert.Equal(t, int64(apitokendomain.DefaultRateLimit), created.Token.RateLimit)
	assert.Equal(t, []string{"messages:write", "messages:read"}, []string(created.Token.Permissions))

	stored, err := repository.Provide().FindTokenByHash(ctx, conn, apitokendomain.HashSecret(created.Secret))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, created.Token.ID, stored.ID)
	assert.Equal(t, []string{"messages:write", "messages:read"}, []string(stored.Permissions))
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, actor, *stored.CreatedBy)

	var audits int64
	require.NoError(t, conn.Model(&auditdomain.AuditLog{}).Where("action = ?", "token.create").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestCreateTokenValidation(t *testing.T) {
	svc, _, node, fake := newTestService(t)
	ctx := context.Background()
	workspaceID := node.Generate()
	past := fake.Now().Add(-time.Minute)

	_, err := svc.CreateToken(ctx, 0, workspaceID, apitokendomain.CreateTokenRequest{Name: " "})
	assert.ErrorIs(t, err, apitokendomain.ErrInvalidName)

	_, err = svc.CreateToken(ctx, 0, workspaceID, apitokendomain.CreateTokenRequest{Name: "x", Permissions: []string{"billing:write"}})
	assert.ErrorIs(t, err, apitokendomain.ErrInvalidPermission)

	_, err = svc.CreateToken(ctx, 0, workspaceID, apitokendomain.CreateTokenRequest{Name: "x", RateLimit: -1})
	assert.ErrorIs(t, err, apitokendomain.ErrInvalidRateLimit)

	_, err = svc.CreateToken(ctx, 0, workspaceID, apitokendomain.CreateTokenRequest{Name: "x", ExpiresAt: &past})
	assert.ErrorIs(t, err, apitokendomain.ErrInvalidExpiry)

	_, err = svc.CreateToken(ctx, 0, 0, apitokendomain.CreateTokenRequest{Name: "x"})
	assert.ErrorIs(t, err, apitokendomain.ErrInvalidWorkspace)
}

func TestRevokeTokenIsScopedToWorkspace(t *testing.T) {
	svc, conn, node, _ := newTestService(t)
	ctx := context.Background()
	workspaceID := node.Generate()

	created, err := svc.CreateToken(ctx, 0, workspaceID, apitokendomain.CreateTokenRequest{Name: "deploys"})
	require.NoError(t, err)

	err = svc.RevokeToken(ctx, 0, node.Generate(), created.Token.ID)
	assert.ErrorIs(t, err, apitokendomain.ErrTokenNotFound)

	require.NoError(t, svc.RevokeToken(ctx, 0, workspaceID, created.Token.ID))
	require.NoError(t, svc.RevokeToken(ctx, 0, workspaceID, created.Token.ID))

	tokens, err := svc.ListTokens(ctx, workspaceID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.NotNil(t, tokens[0].RevokedAt)

	affected, err := repository.Provide().ConsumeToken(ctx, conn, created.Token.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestConsumeTokenStopsAtCeiling(t *testing.T) {
	svc, conn, node, _ := newTestService(t)
	ctx := context.Background()
	repo := repository.Provide()

	created, err := svc.CreateToken(ctx, 0, node.Generate(), apitokendomain.CreateTokenRequest{Name: "tight", RateLimit: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		affected, err := repo.ConsumeToken(ctx, conn, created.Token.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), affected)
	}
	affected, err := repo.ConsumeToken(ctx, conn, created.Token.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	stored, err := repo.FindTokenByHash(ctx, conn, created.Token.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.UsageCount)
}

func TestPersonalKeyLifecycle(t *testing.T) {
	svc, conn, node, _ := newTestService(t)
	ctx := context.Background()
	userID := node.Generate()

	_, err := svc.CreatePersonalKey(ctx, 0, apitokendomain.CreatePersonalKeyRequest{Name: "laptop"})
	assert.ErrorIs(t, err, apitokendomain.ErrInvalidUser)

	created, err := svc.CreatePersonalKey(ctx, userID, apitokendomain.CreatePersonalKeyRequest{Name: "laptop", Scopes: []string{"*"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.Secret, apitokendomain.PersonalKeyPrefix))
	assert.True(t, created.Key.IsActive)

	err = svc.RevokePersonalKey(ctx, node.Generate(), created.Key.ID)
	assert.ErrorIs(t, err, apitokendomain.ErrKeyNotFound)

	require.NoError(t, svc.RevokePersonalKey(ctx, userID, created.Key.ID))
	stored, err := repository.Provide().FindPersonalKeyByHash(ctx, conn, apitokendomain.HashSecret(created.Secret))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.IsActive)
}
