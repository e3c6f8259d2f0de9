package mention

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

var directory = []Member{
	{UserID: 1, Handle: "alice", DisplayName: "Alice Liddell"},
	{UserID: 2, Handle: "bob", DisplayName: "Bob Stone"},
	{UserID: 3, Handle: "carol", DisplayName: "Carol"},
}

func TestExtractTokensKeepsOrder(t *testing.T) {
	tokens := ExtractTokens("hi @alice and @bob, ignore @unknownperson")
	assert.Equal(t, []string{"alice", "bob", "unknownperson"}, tokens)
}

func TestExtractTokensQuotedAndPunctuation(t *testing.T) {
	tokens := ExtractTokens(`ping @"Alice Liddell" then @carol. done @bob-`)
	assert.Equal(t, []string{"Alice Liddell", "carol", "bob"}, tokens)
}

func TestExtractTokensIgnoresEmails(t *testing.T) {
	assert.Empty(t, ExtractTokens("mail me at alice@example.com or a@@b"))
	assert.Equal(t, []string{"bob"}, ExtractTokens("(@bob) alice@example.com"))
}

func TestResolveMentionRoundTrip(t *testing.T) {
	tokens := ExtractTokens("hi @alice and @bob, ignore @unknownperson")
	got := Resolve(tokens, directory, snowflake.ID(99))
	assert.Equal(t, []snowflake.ID{1, 2}, got)
}

func TestResolveExcludesSender(t *testing.T) {
	tokens := ExtractTokens("note to self @alice, cc @BOB")
	got := Resolve(tokens, directory, snowflake.ID(1))
	assert.Equal(t, []snowflake.ID{2}, got)
}

func TestResolveMatchesDisplayNameCaseInsensitive(t *testing.T) {
	tokens := ExtractTokens(`@"alice liddell" @Carol @alice`)
	got := Resolve(tokens, directory, 0)
	assert.Equal(t, []snowflake.ID{1, 3}, got)
}

func TestResolveWithoutDirectory(t *testing.T) {
	assert.Empty(t, Resolve([]string{"alice"}, nil, 0))
	assert.Empty(t, Resolve(nil, directory, 0))
}
