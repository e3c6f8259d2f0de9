package workspacecontext

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestWorkspaceIDRoundTrip(t *testing.T) {
	ctx := WithWorkspaceID(context.Background(), snowflake.ID(42))
	id, ok := WorkspaceIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	_, ok = WorkspaceIDFromContext(WithWorkspaceID(context.Background(), 0))
	assert.False(t, ok)
}
