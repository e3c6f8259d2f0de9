package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/larrybwosi/workspace-sub003/internal/clock"
	identitydomain "github.com/larrybwosi/workspace-sub003/internal/identity/domain"
	"github.com/larrybwosi/workspace-sub003/internal/identity/repository"
	"github.com/larrybwosi/workspace-sub003/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (identitydomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest(&identitydomain.User{}, &identitydomain.Session{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
	}), fake
}

func TestCreateUserRejectsDuplicateHandle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, identitydomain.CreateUserRequest{Handle: "@alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Handle)
	assert.Equal(t, "alice", user.DisplayName)

	_, err = svc.CreateUser(ctx, identitydomain.CreateUserRequest{Handle: "alice"})
	assert.ErrorIs(t, err, identitydomain.ErrHandleTaken)

	_, err = svc.CreateUser(ctx, identitydomain.CreateUserRequest{Handle: "two words"})
	assert.ErrorIs(t, err, identitydomain.ErrInvalidHandle)
}

func TestResolveSessionHonoursExpiry(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, identitydomain.CreateUserRequest{Handle: "bob", DisplayName: "Bob"})
	require.NoError(t, err)

	token, err := svc.CreateSession(ctx, user.ID, time.Hour)
	require.NoError(t, err)

	resolved, err := svc.ResolveSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)

	_, err = svc.ResolveSession(ctx, token+"x")
	assert.ErrorIs(t, err, identitydomain.ErrInvalidSession)

	fake.Advance(2 * time.Hour)
	_, err = svc.ResolveSession(ctx, token)
	assert.ErrorIs(t, err, identitydomain.ErrInvalidSession)
}
