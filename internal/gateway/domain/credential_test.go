package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitExceededAtCeiling(t *testing.T) {
	p := Principal{Kind: KindWorkspaceToken, RateLimit: 100, UsageCount: 100}
	assert.True(t, IsRateLimitExceeded(p))

	p.UsageCount = 99
	assert.False(t, IsRateLimitExceeded(p))

	p.RateLimit = 0
	p.UsageCount = 1_000_000
	assert.False(t, IsRateLimitExceeded(p))

	assert.False(t, IsRateLimitExceeded(Principal{Kind: KindPersonalKey, RateLimit: 1, UsageCount: 5}))
}

func TestHasPermission(t *testing.T) {
	p := Principal{Permissions: []string{ScopeMessagesWrite}}
	assert.True(t, HasPermission(p, ScopeMessagesWrite))
	assert.False(t, HasPermission(p, ScopeChannelsWrite))
	assert.True(t, HasPermission(Principal{Permissions: []string{"*"}}, ScopeChannelsWrite))
	assert.False(t, HasPermission(Principal{}, ScopeMessagesWrite))
}

func TestQuotaOf(t *testing.T) {
	q, ok := QuotaOf(Principal{Kind: KindWorkspaceToken, RateLimit: 100, UsageCount: 99, Consumed: true})
	assert.True(t, ok)
	assert.Equal(t, Quota{Limit: 100, Remaining: 0}, q)

	q, ok = QuotaOf(Principal{Kind: KindWorkspaceToken, RateLimit: 100, UsageCount: 100})
	assert.True(t, ok)
	assert.Equal(t, int64(0), q.Remaining)

	_, ok = QuotaOf(UserPrincipal(snowflake.ID(1)))
	assert.False(t, ok)
}

func TestAuthorIDOnlyForUserBackedPrincipals(t *testing.T) {
	uid := snowflake.ID(5)
	assert.Equal(t, uid, UserPrincipal(uid).AuthorID())
	assert.Equal(t, uid, Principal{Kind: KindPersonalKey, UserID: &uid}.AuthorID())
	assert.Equal(t, snowflake.ID(0), Principal{Kind: KindWorkspaceToken, UserID: &uid}.AuthorID())
}
